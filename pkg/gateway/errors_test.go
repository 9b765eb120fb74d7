package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/session"
	"github.com/devharness/harnessd/pkg/store"
)

func TestWireErrorPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		prefix string
	}{
		{"unauthorized", store.ErrUnauthorized, "auth: "},
		{"invalid", fmt.Errorf("%w: path is required", store.ErrInvalidArgument), "invalid: "},
		{"store not found", fmt.Errorf("%w: directory d1", store.ErrNotFound), "not-found: "},
		{"session not found", fmt.Errorf("%w: s1", session.ErrNotFound), "not-found: "},
		{"conflict", fmt.Errorf("%w: held by ctrl-1", session.ErrConflict), "conflict: "},
		{"already exists", store.ErrAlreadyExists, "conflict: "},
		{"precondition", fmt.Errorf("%w: task is draft", store.ErrPreconditionFailed), "precondition: "},
		{"server draining", fmt.Errorf("%w: command refused", ErrShuttingDown), "shutting-down: "},
		{"mux draining", events.ErrShuttingDown, "shutting-down: "},
		{"registry draining", session.ErrShuttingDown, "shutting-down: "},
		{"cancelled", fmt.Errorf("%w: removed during start", session.ErrCancelled), "cancelled: "},
		{"anything else", errors.New("disk on fire"), "internal: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wireError(tt.err)
			assert.True(t, len(got) > len(tt.prefix) && got[:len(tt.prefix)] == tt.prefix,
				"wireError(%v) = %q, want prefix %q", tt.err, got, tt.prefix)
		})
	}
}

func TestWireErrorNotLive(t *testing.T) {
	assert.Equal(t, "session is not live", wireError(session.ErrNotLive))
	assert.Equal(t, "session is not live", wireError(fmt.Errorf("input refused: %w", session.ErrNotLive)))
}
