// Package session owns live PTY-backed processes: spawning, output rings with
// absolute byte cursors, input forwarding, resize and signal delivery,
// controller claims, and exit capture. It knows nothing about agent command
// lines (a LaunchPlanner collaborator derives those) or about telemetry (a
// StatusReducer collaborator projects it into status models).
package session

import (
	"errors"
	"time"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

var (
	// ErrNotFound is returned when the session id is not in the registry.
	ErrNotFound = errors.New("session not found")

	// ErrNotLive is returned for operations that require a running process
	// when the session record exists but the process has exited.
	ErrNotLive = errors.New("session is not live")

	// ErrConflict is returned when a claim collides with a different
	// controller and takeover was not requested.
	ErrConflict = errors.New("session is claimed by another controller")

	// ErrCancelled is returned for a pty.start raced by session.remove.
	ErrCancelled = errors.New("cancelled")
)

// LaunchPlanner derives a process spec from the conversation's agent type and
// adapter state. The supervisor launches whatever it returns.
type LaunchPlanner interface {
	Plan(agentType string, adapterState map[string]any, cwd string) (models.LaunchSpec, error)
}

// TelemetryInput is the agent-type-specific telemetry summary handed to the
// status reducer. Payload is whatever the collaborator's parser produced from
// the raw agent telemetry.
type TelemetryInput struct {
	SessionID  string
	AgentType  string
	Payload    map[string]any
	ObservedAt time.Time
}

// StatusReducer projects telemetry into a rendered status model. A nil return
// means no update.
type StatusReducer interface {
	Project(input TelemetryInput) *models.StatusModel
}

// Hooks is the registry's window into the domain store: each method persists
// a runtime transition, publishes the observed events to the stream, and
// returns them. The registry calls hooks while holding the session lock so
// the stream sees transitions in the order they happened.
type Hooks interface {
	SessionStarted(sessionID string, status models.RuntimeStatus) []events.Observed
	SessionExited(sessionID string, exit models.ExitStatus) []events.Observed
	StatusModelApplied(sessionID string, model models.StatusModel) []events.Observed
	ControlChanged(sessionID, action string, controller, previous *models.Controller, reason string) []events.Observed
	OutputObserved(sessionID string, cursor int64, chunk []byte) []events.Observed
}

// OutputSink receives a session's PTY output and exit for one attached
// connection. Implementations must not block: the PTY reader calls these.
type OutputSink interface {
	SessionOutput(sessionID string, cursor int64, chunk []byte)
	SessionExit(sessionID string, exit models.ExitStatus)
}

// EventSink receives session lifecycle events (pty.event envelopes) for one
// subscribed connection.
type EventSink interface {
	SessionEvent(sessionID string, eventType, title, message, reason string, exit *models.ExitStatus)
}

// Signal is a deliverable control signal.
type Signal string

const (
	SignalInterrupt Signal = "interrupt"
	SignalEOF       Signal = "eof"
	SignalTerminate Signal = "terminate"
)

// StartRequest is everything Start needs besides the registry's own config.
type StartRequest struct {
	SessionID    string
	AgentType    string
	AdapterState map[string]any
	Cwd          string
	InitialCols  int
	InitialRows  int
}

// StartResult reports the outcome of pty.start.
type StartResult struct {
	SessionID string `json:"sessionId"`
	// RecoveredDuplicateStart is set when the session was already live and no
	// new process was spawned.
	RecoveredDuplicateStart bool `json:"recoveredDuplicateStart,omitempty"`
}

// AttachResult reports the outcome of pty.attach.
type AttachResult struct {
	LatestCursor int64 `json:"latestCursor"`
	// Truncated is set when sinceCursor fell below the ring's retention
	// horizon; replay then started at the oldest retained cursor.
	Truncated bool `json:"truncated,omitempty"`
}

// ClaimResult reports the outcome of session.claim.
type ClaimResult struct {
	SessionID  string            `json:"sessionId"`
	Action     string            `json:"action"` // claimed | taken-over
	Controller models.Controller `json:"controller"`
}
