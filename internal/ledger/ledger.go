package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	pebble "github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"gifforge/internal/logging"
)

// Status is the terminal state of a recorded conversion.
type Status string

const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Record is one conversion outcome, successful or not.
type Record struct {
	JobID         string        `json:"jobId"`
	Fingerprint   string        `json:"fingerprint"`
	SourcePath    string        `json:"sourcePath"`
	Format        string        `json:"format"`
	Status        Status        `json:"status"`
	Category      string        `json:"category,omitempty"`
	Message       string        `json:"message,omitempty"`
	SizeBytes     int           `json:"sizeBytes"`
	FramesEncoded int           `json:"framesEncoded"`
	FramesSkipped int           `json:"framesSkipped"`
	Warnings      []string      `json:"warnings,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	Timestamp     time.Time     `json:"timestamp"`
}

// Ledger is an append-mostly store of conversion outcomes keyed by job ID.
type Ledger struct {
	db *pebble.DB
}

// Open creates or opens the ledger database at dbPath.
func Open(dbPath string) (*Ledger, error) {
	db, err := pebble.Open(dbPath, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	logging.Info("Ledger opened at %s", dbPath)
	return &Ledger{db: db}, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// NewJobID mints an identifier for a conversion before it starts, so logs,
// progress streams, and the eventual record all share one handle.
func NewJobID() string {
	return uuid.NewString()
}

// Put stores a record under its job ID.
func (l *Ledger) Put(rec Record) error {
	if rec.JobID == "" {
		return fmt.Errorf("record has no job ID")
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger record: %w", err)
	}
	return l.db.Set([]byte(rec.JobID), data, pebble.Sync)
}

// Get retrieves a record by job ID. A missing job returns (nil, nil).
func (l *Ledger) Get(jobID string) (*Record, error) {
	data, closer, err := l.db.Get([]byte(jobID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger record: %w", err)
	}
	return &rec, nil
}

// List returns all records, newest first.
func (l *Ledger) List() ([]Record, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []Record
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			// Skip records written by an incompatible version.
			continue
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	return records, nil
}

// CleanupOlderThan removes records past the retention window and returns how
// many were deleted.
func (l *Ledger) CleanupOlderThan(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)

	iter, err := l.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}

	var stale [][]byte
	for iter.First(); iter.Valid(); iter.Next() {
		var rec Record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			continue
		}
		if rec.Timestamp.Before(cutoff) {
			key := make([]byte, len(iter.Key()))
			copy(key, iter.Key())
			stale = append(stale, key)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, err
	}

	for _, key := range stale {
		if err := l.db.Delete(key, pebble.Sync); err != nil {
			return 0, fmt.Errorf("failed to delete stale ledger record: %w", err)
		}
	}
	return len(stale), nil
}
