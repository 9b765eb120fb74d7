package protocol

import (
	"encoding/json"

	"github.com/devharness/harnessd/pkg/events"
)

// maxIDLen bounds every opaque identifier on the wire (UUID-style strings).
const maxIDLen = 128

// maxDim bounds terminal dimensions.
const maxDim = 65535

func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen
}

// ParseClientEnvelope parses one client→server envelope. It returns nil for
// anything malformed: unknown kind, wrong field types, out-of-range values.
// The one exception is a valid command envelope with a malformed inner
// command and a commandId: that returns a Command with a nil Cmd so the
// server can answer command.failed.
func ParseClientEnvelope(data []byte) ClientEnvelope {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}

	switch probe.Kind {
	case KindAuth:
		var env Auth
		if err := json.Unmarshal(data, &env); err != nil || env.Token == "" {
			return nil
		}
		return env

	case KindCommand:
		var outer struct {
			CommandID string          `json:"commandId"`
			Command   json.RawMessage `json:"command"`
		}
		if err := json.Unmarshal(data, &outer); err != nil {
			return nil
		}
		if outer.CommandID == "" || len(outer.CommandID) > maxIDLen {
			return nil
		}
		cmd, err := ParseCmd(outer.Command)
		if err != nil {
			return Command{CommandID: outer.CommandID}
		}
		return Command{CommandID: outer.CommandID, Cmd: cmd}

	case KindPtyInput:
		var env PtyInput
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.SessionID) {
			return nil
		}
		return env

	case KindPtyResize:
		var env PtyResize
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.SessionID) {
			return nil
		}
		if env.Cols < 1 || env.Cols > maxDim || env.Rows < 1 || env.Rows > maxDim {
			return nil
		}
		return env

	case KindPtySignal:
		var env PtySignal
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.SessionID) {
			return nil
		}
		switch env.Signal {
		case SignalInterrupt, SignalEOF, SignalTerminate:
			return env
		}
		return nil
	}

	return nil
}

// ParseServerEnvelope parses one server→client envelope. Used by the client
// projection reducer and by tests; the same strictness rules apply.
func ParseServerEnvelope(data []byte) ServerEnvelope {
	var probe struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}

	switch probe.Kind {
	case KindAuthOK:
		var env AuthOK
		if err := json.Unmarshal(data, &env); err != nil {
			return nil
		}
		return env

	case KindAuthError:
		var env AuthError
		if err := json.Unmarshal(data, &env); err != nil || env.Error == "" {
			return nil
		}
		return env

	case KindCommandAccepted:
		var env CommandAccepted
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.CommandID) {
			return nil
		}
		return env

	case KindCommandCompleted:
		var env CommandCompleted
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.CommandID) {
			return nil
		}
		if !isJSONObject(env.Result) {
			return nil
		}
		return env

	case KindCommandFailed:
		var env CommandFailed
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.CommandID) || env.Error == "" {
			return nil
		}
		return env

	case KindPtyOutput:
		var env PtyOutput
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.SessionID) {
			return nil
		}
		if env.Cursor < 0 {
			return nil
		}
		return env

	case KindPtyExit:
		var env PtyExit
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.SessionID) {
			return nil
		}
		if !ValidExit(env.Exit) {
			return nil
		}
		return env

	case KindPtyEvent:
		var env PtyEvent
		if err := json.Unmarshal(data, &env); err != nil || !validID(env.SessionID) {
			return nil
		}
		if !validSessionEvent(env.Event) {
			return nil
		}
		return env

	case KindStreamEvent:
		var outer struct {
			SubscriptionID string          `json:"subscriptionId"`
			Cursor         *int64          `json:"cursor"`
			Event          json.RawMessage `json:"event"`
		}
		if err := json.Unmarshal(data, &outer); err != nil || !validID(outer.SubscriptionID) {
			return nil
		}
		if outer.Cursor == nil || *outer.Cursor < 0 {
			return nil
		}
		ev, err := events.ParseObserved(outer.Event)
		if err != nil {
			return nil
		}
		return StreamEvent{SubscriptionID: outer.SubscriptionID, Cursor: *outer.Cursor, Event: ev}
	}

	return nil
}

func validSessionEvent(ev SessionEvent) bool {
	switch ev.Type {
	case SessionEventNotify, SessionEventTurnCompleted, SessionEventAttentionRequired:
		return ev.Exit == nil
	case SessionEventSessionExit:
		return ev.Exit != nil && ValidExit(*ev.Exit)
	}
	return false
}

// isJSONObject reports whether raw is a JSON object.
func isJSONObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
