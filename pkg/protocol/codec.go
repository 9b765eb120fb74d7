// Package protocol implements the newline-delimited JSON envelope codec for
// the control-plane stream. Envelopes are tagged unions discriminated on
// "kind"; parsing is strict (an envelope with any malformed field is dropped
// whole) so a misbehaving peer can never crash the connection.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeClient serializes a client→server envelope as one JSON line.
func EncodeClient(env ClientEnvelope) ([]byte, error) {
	return encodeTagged(env, env.clientKind())
}

// EncodeServer serializes a server→client envelope as one JSON line.
func EncodeServer(env ServerEnvelope) ([]byte, error) {
	return encodeTagged(env, env.serverKind())
}

func encodeTagged(env any, kind string) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", kind, err)
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", kind, err)
	}
	m["kind"] = kind
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", kind, err)
	}
	return append(out, '\n'), nil
}

// ConsumeJSONLines splits buf into complete lines and returns the raw
// messages parsed from them plus the trailing partial line. Empty lines are
// skipped; lines that are not valid JSON are silently discarded so a
// malformed peer cannot break the stream.
func ConsumeJSONLines(buf []byte) (msgs []json.RawMessage, remainder []byte) {
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSpace(buf[:idx])
		buf = buf[idx+1:]
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			continue
		}
		msg := make(json.RawMessage, len(line))
		copy(msg, line)
		msgs = append(msgs, msg)
	}
	return msgs, buf
}
