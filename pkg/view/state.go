// Package view projects the document and compile cycle into the read-only
// state that display clients render.
package view

import (
	"resume-editor/pkg/compile"
	"resume-editor/pkg/document"
)

// Snapshot is the view as clients see it. The artifact payload is carried
// separately so that state updates stay small.
type Snapshot struct {
	SourceText       string         `json:"source_text"`
	Revision         int64          `json:"revision"`
	CompileStatus    compile.Status `json:"compile_status"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	ArtifactRevision int64          `json:"artifact_revision"`
	HasArtifact      bool           `json:"has_artifact"`
	EditPending      bool           `json:"edit_pending"`
}

// Artifact is the latest successfully compiled output
type Artifact struct {
	Revision int64  `json:"revision"`
	Payload  string `json:"pdf"`
}

// Change is delivered to listeners after every update
type Change struct {
	Snapshot Snapshot
	// Artifact is set only when a new artifact was just published
	Artifact *Artifact
}

// State is fed by the store, scheduler and applier callbacks and by nothing else.
// It must only be touched on the session loop.
type State struct {
	snapshot  Snapshot
	artifact  *Artifact
	listeners []func(Change)
}

// New creates a view of doc before any compile has happened
func New(doc document.Document) *State {
	return &State{
		snapshot: Snapshot{
			SourceText:    doc.Source,
			Revision:      doc.Revision,
			CompileStatus: compile.StatusIdle,
		},
	}
}

// Subscribe registers fn to receive every change
func (v *State) Subscribe(fn func(Change)) {
	v.listeners = append(v.listeners, fn)
}

func (v *State) Snapshot() Snapshot {
	return v.snapshot
}

// Artifact returns the latest published artifact, if any
func (v *State) Artifact() (Artifact, bool) {
	if v.artifact == nil {
		return Artifact{}, false
	}
	return *v.artifact, true
}

// OnMutation is the document store subscriber
func (v *State) OnMutation(m document.Mutation) {
	v.snapshot.SourceText = m.Source
	v.snapshot.Revision = m.Revision
	v.emit(nil)
}

// CompileStatusChanged implements compile.Sink
func (v *State) CompileStatusChanged(status compile.Status, message string) {
	v.snapshot.CompileStatus = status
	switch status {
	case compile.StatusError:
		v.snapshot.ErrorMessage = message
	case compile.StatusCompiling, compile.StatusIdle:
		v.snapshot.ErrorMessage = ""
	}
	v.emit(nil)
}

// ArtifactPublished implements compile.Sink
func (v *State) ArtifactPublished(revision int64, payload string) {
	v.artifact = &Artifact{Revision: revision, Payload: payload}
	v.snapshot.ArtifactRevision = revision
	v.snapshot.HasArtifact = true
	v.emit(v.artifact)
}

// EditPendingChanged follows the applier's busy flag
func (v *State) EditPendingChanged(pending bool) {
	v.snapshot.EditPending = pending
	v.emit(nil)
}

func (v *State) emit(artifact *Artifact) {
	change := Change{Snapshot: v.snapshot}
	if artifact != nil {
		a := *artifact
		change.Artifact = &a
	}
	for _, fn := range v.listeners {
		fn(change)
	}
}

var _ compile.Sink = (*State)(nil)
