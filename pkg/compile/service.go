package compile

import (
	"context"
	"time"
)

// Result is what a rendering service reports for one source snapshot
type Result struct {
	Success bool
	// Artifact is the rendered PDF in a text-safe encoding, usually a
	// data:application/pdf;base64 URL.
	Artifact string
	Error    string
}

// Service renders LaTeX source. It is the only judge of whether a document compiles.
type Service interface {
	Compile(ctx context.Context, source string) (Result, error)
}

// Request is a snapshot dispatched to the rendering service
type Request struct {
	ID           string    `json:"id"`
	Revision     int64     `json:"revision"`
	Source       string    `json:"-"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// Outcome records how a dispatched request resolved
type Outcome struct {
	Request  Request
	Success  bool
	Message  string
	Stale    bool // a newer revision existed when the result arrived
	Duration time.Duration
}

const (
	unknownCompileError = "Unknown compilation error"
	transportFailure    = "Failed to compile LaTeX. Please check your code."
)
