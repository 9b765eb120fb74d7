package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	dir := t.TempDir()

	rec := Record{
		PID:       4242,
		Port:      7421,
		AuthToken: "secret",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Version:   "harnessd/abc123",
	}
	require.NoError(t, WriteRecord(dir, rec))

	got, err := ReadRecord(dir)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// No temp files are left behind by the atomic write.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "gateway.json", entries[0].Name())
}

func TestWriteRecordCreatesRuntimeDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "runtime")

	require.NoError(t, WriteRecord(dir, Record{PID: 1, Port: 2}))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestReadRecordMissing(t *testing.T) {
	_, err := ReadRecord(t.TempDir())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReadRecordToleratesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	data := `{"pid":10,"port":20,"futureField":"x","another":{"nested":true}}`
	require.NoError(t, os.WriteFile(RecordPath(dir), []byte(data), 0o600))

	rec, err := ReadRecord(dir)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.PID)
	assert.Equal(t, 20, rec.Port)
}

func TestReadRecordRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(RecordPath(dir), []byte(`{"pid":10}`), 0o600))
	_, err := ReadRecord(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(RecordPath(dir), []byte(`not json`), 0o600))
	_, err = ReadRecord(dir)
	assert.Error(t, err)
}

func TestRemoveRecord(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteRecord(dir, Record{PID: 1, Port: 2}))

	require.NoError(t, RemoveRecord(dir))
	_, err := os.Stat(RecordPath(dir))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Removing an absent record is fine.
	require.NoError(t, RemoveRecord(dir))
}
