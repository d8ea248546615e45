package ledger

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() {
		if err := l.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	})
	return l
}

func TestNewJobIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewJobID()
		if id == "" {
			t.Fatal("empty job ID")
		}
		if seen[id] {
			t.Fatalf("duplicate job ID %s", id)
		}
		seen[id] = true
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	l := openTestLedger(t)

	rec := Record{
		JobID:         NewJobID(),
		Fingerprint:   "abc123",
		SourcePath:    "/videos/clip.mp4",
		Format:        "gif",
		Status:        StatusComplete,
		SizeBytes:     4096,
		FramesEncoded: 50,
		FramesSkipped: 1,
		Warnings:      []string{"large source file; expect slower processing"},
		Elapsed:       3 * time.Second,
	}
	if err := l.Put(rec); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := l.Get(rec.JobID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for stored record")
	}
	if got.Status != StatusComplete || got.FramesEncoded != 50 {
		t.Errorf("record mismatch: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("Put did not stamp the record")
	}
	if len(got.Warnings) != 1 {
		t.Errorf("Warnings = %v", got.Warnings)
	}
}

func TestLedgerGetMissing(t *testing.T) {
	l := openTestLedger(t)
	got, err := l.Get("nope")
	if err != nil {
		t.Fatalf("Get(missing) error: %v", err)
	}
	if got != nil {
		t.Errorf("Get(missing) = %+v, want nil", got)
	}
}

func TestLedgerPutRequiresJobID(t *testing.T) {
	l := openTestLedger(t)
	if err := l.Put(Record{Status: StatusFailed}); err == nil {
		t.Error("Put() without job ID = nil error, want error")
	}
}

func TestLedgerListNewestFirst(t *testing.T) {
	l := openTestLedger(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		if err := l.Put(Record{
			JobID:     NewJobID(),
			Status:    StatusComplete,
			SizeBytes: i,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := l.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("List() returned %d records, want 3", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.After(records[i-1].Timestamp) {
			t.Error("records not in newest-first order")
		}
	}
	if records[0].SizeBytes != 2 {
		t.Errorf("newest record SizeBytes = %d, want 2", records[0].SizeBytes)
	}
}

func TestLedgerCleanup(t *testing.T) {
	l := openTestLedger(t)

	old := Record{JobID: NewJobID(), Status: StatusFailed, Timestamp: time.Now().Add(-48 * time.Hour)}
	recent := Record{JobID: NewJobID(), Status: StatusComplete, Timestamp: time.Now()}
	for _, rec := range []Record{old, recent} {
		if err := l.Put(rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := l.CleanupOlderThan(24 * time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderThan() error: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupOlderThan() = %d, want 1", n)
	}

	if got, _ := l.Get(old.JobID); got != nil {
		t.Error("stale record survived cleanup")
	}
	if got, _ := l.Get(recent.JobID); got == nil {
		t.Error("recent record was deleted")
	}
}
