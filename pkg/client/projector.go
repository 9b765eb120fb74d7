package client

import (
	"github.com/devharness/harnessd/pkg/cursor"
	"github.com/devharness/harnessd/pkg/events"
)

// Projector applies stream.event deliveries to a snapshot behind the
// subscription cursor guard. Duplicate or regressed cursors return the
// current snapshot pointer untouched, which is what makes reconnect-and-
// resume safe against double-apply.
type Projector struct {
	guard    *cursor.Guard
	snapshot *Snapshot
}

// NewProjector starts from an empty snapshot.
func NewProjector() *Projector {
	return &Projector{
		guard:    cursor.NewGuard(),
		snapshot: NewSnapshot(),
	}
}

// Apply folds one delivery into the snapshot. Returns the snapshot after the
// delivery and whether it changed.
func (p *Projector) Apply(subscriptionID string, cur int64, ev events.Observed) (*Snapshot, bool) {
	if res := p.guard.Observe(subscriptionID, cur); !res.Accepted {
		return p.snapshot, false
	}
	next, changed := Reduce(p.snapshot, ev)
	p.snapshot = next
	return next, changed
}

// Snapshot returns the current synced state.
func (p *Projector) Snapshot() *Snapshot { return p.snapshot }

// Cursor returns the last accepted cursor for the subscription, or nil when
// none was seen.
func (p *Projector) Cursor(subscriptionID string) *int64 {
	return p.guard.Last(subscriptionID)
}
