package edit

import (
	"context"
	"errors"
)

var (
	// ErrBusy rejects an instruction while another is outstanding
	ErrBusy = errors.New("an edit instruction is already in progress")
	// ErrEmptyInstruction rejects blank instructions
	ErrEmptyInstruction = errors.New("instruction is empty")
)

const transportFailure = "Failed to process your request. Please try again."

// Instruction is an opaque natural-language rewrite request
type Instruction struct {
	Text string `json:"text"`
}

// Service rewrites a whole document according to an instruction and returns
// the full new text.
type Service interface {
	Apply(ctx context.Context, instruction, source string) (string, error)
}

// Rejection is a failure the edit service reported itself
type Rejection struct {
	Message string
}

func (e *Rejection) Error() string {
	return e.Message
}

// ServiceError is what a failed instruction returns to its caller.
// Message is safe to show to the user.
type ServiceError struct {
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func toServiceError(err error) *ServiceError {
	var rejection *Rejection
	if errors.As(err, &rejection) && rejection.Message != "" {
		return &ServiceError{Message: rejection.Message, Err: err}
	}
	return &ServiceError{Message: transportFailure, Err: err}
}
