package protocol

import (
	"encoding/json"
	"regexp"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

// Client→server envelope kinds.
const (
	KindAuth      = "auth"
	KindCommand   = "command"
	KindPtyInput  = "pty.input"
	KindPtyResize = "pty.resize"
	KindPtySignal = "pty.signal"
)

// Server→client envelope kinds.
const (
	KindAuthOK           = "auth.ok"
	KindAuthError        = "auth.error"
	KindCommandAccepted  = "command.accepted"
	KindCommandCompleted = "command.completed"
	KindCommandFailed    = "command.failed"
	KindPtyOutput        = "pty.output"
	KindPtyExit          = "pty.exit"
	KindPtyEvent         = "pty.event"
	KindStreamEvent      = "stream.event"
)

// Signal is the closed set of deliverable PTY signals.
type Signal string

const (
	SignalInterrupt Signal = "interrupt"
	SignalEOF       Signal = "eof"
	SignalTerminate Signal = "terminate"
)

// signalNameRe validates symbolic signal names in exit statuses.
var signalNameRe = regexp.MustCompile(`^SIG[A-Z0-9]+(?:_[A-Z0-9]+)*$`)

// ValidSignalName reports whether s is a well-formed SIG* name.
func ValidSignalName(s string) bool {
	return signalNameRe.MatchString(s)
}

// ClientEnvelope is the sum type of client→server envelopes.
type ClientEnvelope interface {
	clientKind() string
}

// ServerEnvelope is the sum type of server→client envelopes.
type ServerEnvelope interface {
	serverKind() string
}

// Auth must be the first envelope on every connection.
type Auth struct {
	Token string `json:"token"`
}

// Command wraps a command-union payload. A Command with a nil Cmd passed the
// outer envelope validation but carried a malformed inner command; the server
// answers it with command.failed when CommandID is set.
type Command struct {
	CommandID string `json:"commandId"`
	Cmd       Cmd    `json:"-"`
}

// MarshalJSON emits the inner command with its "type" discriminator.
func (c Command) MarshalJSON() ([]byte, error) {
	inner, err := MarshalCmd(c.Cmd)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		CommandID string          `json:"commandId"`
		Command   json.RawMessage `json:"command"`
	}{CommandID: c.CommandID, Command: inner})
}

// PtyInput carries raw bytes for a session's stdin. Data is wire-encoded as
// standard base64 under the dataBase64 key.
type PtyInput struct {
	SessionID string `json:"sessionId"`
	Data      []byte `json:"dataBase64"`
}

type PtyResize struct {
	SessionID string `json:"sessionId"`
	Cols      int    `json:"cols"`
	Rows      int    `json:"rows"`
}

type PtySignal struct {
	SessionID string `json:"sessionId"`
	Signal    Signal `json:"signal"`
}

func (Auth) clientKind() string      { return KindAuth }
func (Command) clientKind() string   { return KindCommand }
func (PtyInput) clientKind() string  { return KindPtyInput }
func (PtyResize) clientKind() string { return KindPtyResize }
func (PtySignal) clientKind() string { return KindPtySignal }

type AuthOK struct{}

type AuthError struct {
	Error string `json:"error"`
}

type CommandAccepted struct {
	CommandID string `json:"commandId"`
}

type CommandCompleted struct {
	CommandID string          `json:"commandId"`
	Result    json.RawMessage `json:"result"`
}

type CommandFailed struct {
	CommandID string `json:"commandId"`
	Error     string `json:"error"`
}

// PtyOutput delivers one chunk of session output. Cursor is the absolute
// byte position of the chunk's last byte in the session stream.
type PtyOutput struct {
	SessionID string `json:"sessionId"`
	Cursor    int64  `json:"cursor"`
	Chunk     []byte `json:"chunkBase64"`
}

type PtyExit struct {
	SessionID string            `json:"sessionId"`
	Exit      models.ExitStatus `json:"exit"`
}

// SessionEventType is the closed set of session lifecycle event types
// delivered via pty.event.
type SessionEventType string

const (
	SessionEventNotify            SessionEventType = "notify"
	SessionEventTurnCompleted     SessionEventType = "turn-completed"
	SessionEventAttentionRequired SessionEventType = "attention-required"
	SessionEventSessionExit       SessionEventType = "session-exit"
)

// SessionEvent is one session lifecycle event. Exit is present exactly for
// session-exit events.
type SessionEvent struct {
	Type    SessionEventType   `json:"type"`
	Title   string             `json:"title,omitempty"`
	Message string             `json:"message,omitempty"`
	Reason  string             `json:"reason,omitempty"`
	Exit    *models.ExitStatus `json:"exit,omitempty"`
}

type PtyEvent struct {
	SessionID string       `json:"sessionId"`
	Event     SessionEvent `json:"event"`
}

// StreamEvent delivers one observed event on one subscription.
type StreamEvent struct {
	SubscriptionID string          `json:"subscriptionId"`
	Cursor         int64           `json:"cursor"`
	Event          events.Observed `json:"-"`
}

// MarshalJSON emits the observed event with its "type" discriminator.
func (s StreamEvent) MarshalJSON() ([]byte, error) {
	ev, err := events.MarshalObserved(s.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		SubscriptionID string          `json:"subscriptionId"`
		Cursor         int64           `json:"cursor"`
		Event          json.RawMessage `json:"event"`
	}{SubscriptionID: s.SubscriptionID, Cursor: s.Cursor, Event: ev})
}

func (AuthOK) serverKind() string           { return KindAuthOK }
func (AuthError) serverKind() string        { return KindAuthError }
func (CommandAccepted) serverKind() string  { return KindCommandAccepted }
func (CommandCompleted) serverKind() string { return KindCommandCompleted }
func (CommandFailed) serverKind() string    { return KindCommandFailed }
func (PtyOutput) serverKind() string        { return KindPtyOutput }
func (PtyExit) serverKind() string          { return KindPtyExit }
func (PtyEvent) serverKind() string         { return KindPtyEvent }
func (StreamEvent) serverKind() string      { return KindStreamEvent }

// ValidExit reports whether an exit status satisfies the wire contract:
// exactly code-or-signal may be null, never both, and a present signal must
// be a symbolic SIG* name while a present code must be >= 0.
func ValidExit(e models.ExitStatus) bool {
	if e.Code == nil && e.Signal == nil {
		return false
	}
	if e.Code != nil && *e.Code < 0 {
		return false
	}
	if e.Signal != nil && !ValidSignalName(*e.Signal) {
		return false
	}
	return true
}
