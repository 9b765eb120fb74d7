package gateway

import (
	"errors"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/session"
	"github.com/devharness/harnessd/pkg/store"
)

// ErrShuttingDown is returned for commands that arrive while the server is
// draining.
var ErrShuttingDown = errors.New("server is draining")

// wireError renders an error as the wire string carried in command.failed.
// Every message starts with a stable kind prefix so clients can classify
// failures without parsing free text.
func wireError(err error) string {
	switch {
	case errors.Is(err, store.ErrUnauthorized):
		return "auth: " + err.Error()
	case errors.Is(err, store.ErrInvalidArgument):
		return "invalid: " + err.Error()
	case errors.Is(err, store.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return "not-found: " + err.Error()
	case errors.Is(err, session.ErrNotLive):
		return "session is not live"
	case errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrAlreadyExists),
		errors.Is(err, session.ErrConflict):
		return "conflict: " + err.Error()
	case errors.Is(err, store.ErrPreconditionFailed):
		return "precondition: " + err.Error()
	case errors.Is(err, ErrShuttingDown),
		errors.Is(err, events.ErrShuttingDown),
		errors.Is(err, session.ErrShuttingDown):
		return "shutting-down: " + err.Error()
	case errors.Is(err, session.ErrCancelled):
		return "cancelled: " + err.Error()
	default:
		return "internal: " + err.Error()
	}
}
