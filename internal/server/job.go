package server

import (
	"context"
	"os"
	"sync"
	"time"

	"gifforge/internal/ledger"
	"gifforge/internal/logging"
	"gifforge/internal/pipeline"
	"gifforge/internal/source"
	"gifforge/internal/supervise"
)

// JobStatus is the lifecycle state of a submitted conversion.
type JobStatus string

const (
	JobQueued   JobStatus = "queued"
	JobRunning  JobStatus = "running"
	JobComplete JobStatus = "complete"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Job tracks one submitted conversion from upload to terminal state.
type Job struct {
	ID      string
	Format  source.Format
	Created time.Time

	mu       sync.RWMutex
	status   JobStatus
	progress supervise.Event
	result   *pipeline.Result
	err      error
	cancel   context.CancelFunc
	subs     map[chan supervise.Event]struct{}
	ended    time.Time
}

// Snapshot is a read-consistent view of a job for API responses.
type Snapshot struct {
	ID       string          `json:"id"`
	Format   source.Format   `json:"format"`
	Status   JobStatus       `json:"status"`
	Progress supervise.Event `json:"progress"`
	Error    string          `json:"error,omitempty"`
	Category string          `json:"category,omitempty"`
	Size     int             `json:"size,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
	Created  time.Time       `json:"created"`
}

func (j *Job) snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Snapshot{
		ID:       j.ID,
		Format:   j.Format,
		Status:   j.status,
		Progress: j.progress,
		Created:  j.Created,
	}
	if j.err != nil {
		s.Error = j.err.Error()
		s.Category = string(pipeline.CategoryOf(j.err))
	}
	if j.result != nil {
		s.Size = j.result.Size
		s.Warnings = j.result.Warnings
	}
	return s
}

// Result returns the finished result, or nil while the job is live.
func (j *Job) Result() *pipeline.Result {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Cancel requests cooperative cancellation of a running job.
func (j *Job) Cancel() {
	j.mu.RLock()
	cancel := j.cancel
	j.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// subscribe registers a progress listener. The returned channel is closed
// when the job ends.
func (j *Job) subscribe() chan supervise.Event {
	ch := make(chan supervise.Event, 16)
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.subs == nil {
		// Job already terminal; hand back a closed channel.
		close(ch)
		return ch
	}
	j.subs[ch] = struct{}{}
	return ch
}

func (j *Job) unsubscribe(ch chan supervise.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.subs != nil {
		delete(j.subs, ch)
	}
}

func (j *Job) publish(ev supervise.Event) {
	j.mu.Lock()
	j.progress = ev
	for ch := range j.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	j.mu.Unlock()
}

func (j *Job) finish(status JobStatus, res *pipeline.Result, err error) {
	j.mu.Lock()
	j.status = status
	j.result = res
	j.err = err
	j.ended = time.Now()
	for ch := range j.subs {
		close(ch)
	}
	j.subs = nil
	j.mu.Unlock()
}

// JobManager owns the in-memory job table and drives conversions in the
// background. Terminal jobs are eventually reaped; the ledger remains the
// durable record.
type JobManager struct {
	pipe   *pipeline.Pipeline
	led    *ledger.Ledger
	keep   time.Duration
	mu     sync.RWMutex
	jobs   map[string]*Job
}

// NewJobManager creates a manager. led may be nil to skip durable records;
// keep bounds how long terminal jobs stay queryable in memory.
func NewJobManager(pipe *pipeline.Pipeline, led *ledger.Ledger, keep time.Duration) *JobManager {
	if keep <= 0 {
		keep = time.Hour
	}
	return &JobManager{
		pipe: pipe,
		led:  led,
		keep: keep,
		jobs: make(map[string]*Job),
	}
}

// Get returns a live job by ID.
func (m *JobManager) Get(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	return j, ok
}

// List returns snapshots of all in-memory jobs.
func (m *JobManager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.snapshot())
	}
	return out
}

// Start submits a conversion of an uploaded file and returns its job. The
// source file is deleted when the job ends.
func (m *JobManager) Start(path, declaredType string, req source.Request) *Job {
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:      ledger.NewJobID(),
		Format:  req.Format,
		Created: time.Now(),
		status:  JobQueued,
		cancel:  cancel,
		subs:    make(map[chan supervise.Event]struct{}),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.run(ctx, job, path, declaredType, req)
	return job
}

func (m *JobManager) run(ctx context.Context, job *Job, path, declaredType string, req source.Request) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Warn("failed to remove uploaded source %s: %v", path, err)
		}
	}()

	job.mu.Lock()
	job.status = JobRunning
	job.mu.Unlock()

	events := make(chan supervise.Event, 16)
	fanDone := make(chan struct{})
	go func() {
		defer close(fanDone)
		for ev := range events {
			job.publish(ev)
		}
	}()

	start := time.Now()
	res, err := m.pipe.ConvertUpload(ctx, path, declaredType, req, events)
	<-fanDone

	var status JobStatus
	switch {
	case err != nil:
		status = JobFailed
	case res.Canceled:
		status = JobCanceled
	default:
		status = JobComplete
	}
	job.finish(status, res, err)

	m.record(job, path, req, res, err, time.Since(start))
}

func (m *JobManager) record(job *Job, path string, req source.Request, res *pipeline.Result, err error, elapsed time.Duration) {
	if m.led == nil {
		return
	}

	rec := ledger.Record{
		JobID:      job.ID,
		SourcePath: path,
		Format:     string(req.Format),
		Elapsed:    elapsed,
	}
	switch {
	case err != nil:
		rec.Status = ledger.StatusFailed
		rec.Category = string(pipeline.CategoryOf(err))
		rec.Message = err.Error()
	case res.Canceled:
		rec.Status = ledger.StatusCanceled
	default:
		rec.Status = ledger.StatusComplete
		rec.SizeBytes = res.Size
		rec.FramesEncoded = res.FramesEncoded
		rec.FramesSkipped = res.FramesSkipped
		rec.Warnings = res.Warnings
	}
	if ledgerErr := m.led.Put(rec); ledgerErr != nil {
		logging.Error("failed to record job %s in ledger: %v", job.ID, ledgerErr)
	}
}

// ReapEvery runs Reap on a fixed cadence until ctx is canceled. Terminal
// jobs hold their artifact bytes until reaped, so the server must keep this
// running for the life of the process.
func (m *JobManager) ReapEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Reap(); n > 0 {
				logging.Debug("Reaped %d terminal jobs", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Reap drops terminal jobs older than the retention window and returns how
// many were removed.
func (m *JobManager) Reap() int {
	cutoff := time.Now().Add(-m.keep)
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, j := range m.jobs {
		j.mu.RLock()
		terminal := j.status == JobComplete || j.status == JobFailed || j.status == JobCanceled
		old := !j.ended.IsZero() && j.ended.Before(cutoff)
		j.mu.RUnlock()
		if terminal && old {
			delete(m.jobs, id)
			n++
		}
	}
	return n
}
