package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"resume-editor/pkg/db"
	"resume-editor/pkg/edit"
	"resume-editor/pkg/eventloop"
	"resume-editor/pkg/export"
	"resume-editor/pkg/session"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
)

// Handlers contains all HTTP and WebSocket handlers
type Handlers struct {
	manager         *session.Manager
	maxMessageBytes int64
}

// NewHandlers creates a new handlers instance
func NewHandlers(manager *session.Manager, maxMessageBytes int64) *Handlers {
	if maxMessageBytes <= 0 {
		maxMessageBytes = 1 << 20
	}
	return &Handlers{
		manager:         manager,
		maxMessageBytes: maxMessageBytes,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type mutationResponse struct {
	Revision int64  `json:"revision"`
	Origin   string `json:"origin"`
	Length   int    `json:"length"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.V(1).Infof("[http]encode = %s", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps session errors onto HTTP status codes and user-facing text
func statusFor(err error) (int, string) {
	var serr *edit.ServiceError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, edit.ErrBusy):
		return http.StatusConflict, err.Error()
	case errors.Is(err, edit.ErrEmptyInstruction), errors.Is(err, edit.ErrEmptyProfile):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrGenerationDisabled):
		return http.StatusNotImplemented, err.Error()
	case errors.Is(err, export.ErrEmptyDocument):
		return http.StatusConflict, err.Error()
	case errors.Is(err, db.ErrJournalDisabled):
		return http.StatusNotFound, err.Error()
	case errors.As(err, &serr):
		return http.StatusBadGateway, serr.Message
	case errors.Is(err, eventloop.ErrClosed):
		return http.StatusGone, "Session closed"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	vars := mux.Vars(r)
	s, err := h.manager.Get(vars["id"])
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return nil, false
	}
	return s, true
}

// CreateSession starts a session seeded with content, or with a draft
// generated from profile, or with the default resume
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content *string       `json:"content"`
		Profile *edit.Profile `json:"profile"`
	}

	// an empty body starts from the default resume
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxMessageBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	var s *session.Session
	if req.Profile != nil && req.Content == nil {
		s, err = h.manager.Generate(r.Context(), *req.Profile)
		if err != nil {
			status, message := statusFor(err)
			writeError(w, status, message)
			return
		}
	} else {
		s = h.manager.Create(req.Content)
	}
	snap, err := s.Snapshot(r.Context())
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":    s.ID,
		"state": snap,
	})
}

// GetSession returns the current view state
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	snap, err := s.Snapshot(r.Context())
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":    s.ID,
		"state": snap,
	})
}

// DeleteSession discards a session
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := h.manager.Close(vars["id"]); err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateSource replaces the document text as a user edit
func (h *Handlers) UpdateSource(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req struct {
		Content *string `json:"content"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxMessageBytes)).Decode(&req); err != nil || req.Content == nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	m, err := s.Edit(r.Context(), *req.Content)
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponse{
		Revision: m.Revision,
		Origin:   string(m.Origin),
		Length:   len(m.Source),
	})
}

// Recompile compiles the current text without waiting for the debounce window
func (h *Handlers) Recompile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if err := s.Recompile(r.Context()); err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// ApplyInstruction forwards a natural-language edit and waits for the rewrite
func (h *Handlers) ApplyInstruction(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req edit.Instruction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxMessageBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	out, err := s.ApplyInstruction(r.Context(), req.Text)
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, mutationResponse{
		Revision: out.Mutation.Revision,
		Origin:   string(out.Mutation.Origin),
		Length:   len(out.Mutation.Source),
	})
}

// Export downloads the latest compiled PDF as resume.pdf
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	err := s.Export(r.Context(), func(d *export.Download) error {
		w.Header().Set("Content-Type", d.MediaType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+d.Filename+`"`)
		w.Header().Set("X-Artifact-Revision", strconv.FormatInt(d.Revision, 10))
		if d.Pages > 0 {
			w.Header().Set("X-Page-Count", strconv.Itoa(d.Pages))
		}
		http.ServeContent(w, r, d.Filename, d.ModTime, d)
		return nil
	})
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
	}
}

// ListEvents returns the session's journal
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	events, err := s.Events(ctx)
	if err != nil {
		status, message := statusFor(err)
		writeError(w, status, message)
		return
	}
	if events == nil {
		events = []db.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": s.ID,
		"events":     events,
	})
}
