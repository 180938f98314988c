// Path: internal/buffer/mirror.go
package buffer

import (
	"encoding/json"
	"log"
	"os"
	"sync"

	"esp-hub/internal/domain"
)

// Mirror keeps an on-disk copy of the in-memory telemetry buffer for
// crash recovery. The whole file is rewritten on every mutation; this
// bounds recovery complexity at the cost of write amplification.
type Mirror struct {
	path string

	mu      sync.Mutex
	lastSeq uint64
}

// NewMirror creates a mirror backed by the given file path.
func NewMirror(path string) *Mirror {
	return &Mirror{path: path}
}

// Write overwrites the mirror file with the given snapshot. Snapshots are
// ordered by seq (taken under the buffer's lock); a snapshot that lost the
// race to a newer one is skipped so the file never goes backwards.
func (m *Mirror) Write(seq uint64, records []domain.TelemetryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq < m.lastSeq {
		return nil
	}
	m.lastSeq = seq

	if records == nil {
		records = []domain.TelemetryRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

// Load reads the unflushed records back from disk. A missing file means
// an empty buffer. A corrupt file is logged and treated as empty rather
// than failing startup; only a real I/O error is returned.
func (m *Mirror) Load() ([]domain.TelemetryRecord, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var records []domain.TelemetryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Printf("Warning: mirror file %s is unreadable, starting with an empty buffer: %v", m.path, err)
		return nil, nil
	}
	return records, nil
}
