package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Record identifies a running daemon. It is written to
// $HARNESS_RUNTIME/gateway.json when the daemon starts and removed on clean
// stop; CLI clients read it to locate the control plane. Readers tolerate
// unknown keys and any key order.
type Record struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	AuthToken string    `json:"authToken,omitempty"`
	StartedAt time.Time `json:"startedAt"`
	Version   string    `json:"version,omitempty"`
}

// RecordPath returns the record file location under the runtime directory.
func RecordPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, "gateway.json")
}

// WriteRecord writes the record atomically: a temp file in the same directory
// followed by a rename, so readers never see a partial file.
func WriteRecord(runtimeDir string, rec Record) error {
	if err := os.MkdirAll(runtimeDir, 0o700); err != nil {
		return fmt.Errorf("create runtime directory: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode gateway record: %w", err)
	}
	data = append(data, '\n')

	path := RecordPath(runtimeDir)
	tmp, err := os.CreateTemp(runtimeDir, "gateway-*.json.tmp")
	if err != nil {
		return fmt.Errorf("write gateway record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write gateway record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write gateway record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write gateway record: %w", err)
	}
	return nil
}

// ReadRecord loads the record. A missing file returns os.ErrNotExist.
func ReadRecord(runtimeDir string) (Record, error) {
	data, err := os.ReadFile(RecordPath(runtimeDir))
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse gateway record: %w", err)
	}
	if rec.PID == 0 || rec.Port == 0 {
		return Record{}, fmt.Errorf("gateway record missing pid or port")
	}
	return rec, nil
}

// RemoveRecord deletes the record file. Missing files are fine.
func RemoveRecord(runtimeDir string) error {
	err := os.Remove(RecordPath(runtimeDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
