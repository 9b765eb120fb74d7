package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devharness/harnessd/pkg/events"
	"github.com/devharness/harnessd/pkg/models"
)

func TestProjectorApplies(t *testing.T) {
	p := NewProjector()

	snap, changed := p.Apply("sub-1", 1, events.DirectoryUpserted{
		Meta:      metaAt("d1", ""),
		Directory: models.Directory{ID: "d1", Path: "/work/app"},
	})
	assert.True(t, changed)
	assert.Len(t, snap.Directories, 1)
	assert.Same(t, snap, p.Snapshot())

	cur := p.Cursor("sub-1")
	require.NotNil(t, cur)
	assert.Equal(t, int64(1), *cur)
}

// A redelivered cursor is an exact no-op even when the event payload differs,
// which is what makes reconnect replay safe.
func TestProjectorDuplicateCursorIsNoOp(t *testing.T) {
	p := NewProjector()

	first, _ := p.Apply("sub-1", 5, events.DirectoryUpserted{
		Meta:      metaAt("d1", ""),
		Directory: models.Directory{ID: "d1", Path: "/work/app"},
	})

	same, changed := p.Apply("sub-1", 5, events.DirectoryUpserted{
		Meta:      metaAt("d2", ""),
		Directory: models.Directory{ID: "d2", Path: "/work/other"},
	})
	assert.False(t, changed)
	assert.Same(t, first, same)
	assert.Len(t, same.Directories, 1)

	// Regressions are rejected the same way.
	same, changed = p.Apply("sub-1", 3, events.DirectoryArchived{Meta: metaAt("d1", "")})
	assert.False(t, changed)
	assert.Same(t, first, same)
}

func TestProjectorCursorsPerSubscription(t *testing.T) {
	p := NewProjector()

	_, changed := p.Apply("sub-1", 10, events.DirectoryUpserted{
		Meta: metaAt("d1", ""), Directory: models.Directory{ID: "d1"},
	})
	require.True(t, changed)

	// A fresh subscription id has its own cursor stream.
	_, changed = p.Apply("sub-2", 2, events.DirectoryUpserted{
		Meta: metaAt("d2", ""), Directory: models.Directory{ID: "d2"},
	})
	assert.True(t, changed)

	assert.Nil(t, p.Cursor("sub-3"))
}

// An accepted cursor whose event changes nothing still advances the guard, so
// the client resumes past it.
func TestProjectorAdvancesOnNoOpEvents(t *testing.T) {
	p := NewProjector()

	snap, changed := p.Apply("sub-1", 1, events.DirectoryArchived{Meta: metaAt("ghost", "")})
	assert.False(t, changed)
	assert.Same(t, p.Snapshot(), snap)

	cur := p.Cursor("sub-1")
	require.NotNil(t, cur)
	assert.Equal(t, int64(1), *cur)
}
