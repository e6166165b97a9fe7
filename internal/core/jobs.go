package core

// jobs.go runs import batches asynchronously. Callers start a job and get an
// id back immediately; progress is pushed to subscriber channels and the
// final result is available once the job's Done channel closes. Finished
// jobs linger briefly so late subscribers still see the outcome.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ImportPhase is the coarse stage an import job is in.
type ImportPhase string

const (
	PhaseStarting  ImportPhase = "starting"
	PhaseParsing   ImportPhase = "parsing"
	PhaseApplying  ImportPhase = "applying"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// ImportProgress is one progress update pushed to subscribers.
type ImportProgress struct {
	JobID      string      `json:"jobId"`
	Collection string      `json:"collection"`
	Phase      ImportPhase `json:"phase"`
	Imported   int         `json:"imported"`
	Total      int         `json:"total"`
	Error      string      `json:"error,omitempty"`
}

type importJob struct {
	id         string
	collection string
	cancel     context.CancelFunc
	done       chan struct{}

	mu        sync.Mutex
	progress  ImportProgress
	result    *ImportResult
	listeners []chan ImportProgress
	finished  bool
}

func (j *importJob) notify() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ch := range j.listeners {
		select {
		case ch <- j.progress:
		default:
			// Listener is slow, skip this update.
		}
	}
}

func (j *importJob) closeListeners() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finished = true
	for _, ch := range j.listeners {
		close(ch)
	}
	j.listeners = nil
}

func (j *importJob) setPhase(phase ImportPhase) {
	j.mu.Lock()
	j.progress.Phase = phase
	j.mu.Unlock()
	j.notify()
}

func (j *importJob) fail(err error) {
	j.mu.Lock()
	j.progress.Phase = PhaseFailed
	j.progress.Error = err.Error()
	j.result = &ImportResult{Errors: []string{err.Error()}}
	j.mu.Unlock()
	j.notify()
}

// ImportJobManager tracks running and recently finished import jobs.
type ImportJobManager struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	linger  time.Duration

	mu   sync.RWMutex
	jobs map[string]*importJob
	wg   sync.WaitGroup
}

// NewImportJobManager creates a manager. timeout bounds a single job's run;
// zero means one hour.
func NewImportJobManager(store Store, logger *slog.Logger, timeout time.Duration) *ImportJobManager {
	if timeout <= 0 {
		timeout = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportJobManager{
		store:   store,
		logger:  logger,
		timeout: timeout,
		linger:  5 * time.Minute,
		jobs:    make(map[string]*importJob),
	}
}

// Start begins an asynchronous import of file content into a collection and
// returns the job id immediately. schema is the collection's current schema,
// used for per-row validation.
func (m *ImportJobManager) Start(format ExportFormat, collection string, schema []ColumnSchema, content []byte) string {
	jobID := uuid.New().String()
	jobCtx, cancel := context.WithTimeout(context.Background(), m.timeout)

	job := &importJob{
		id:         jobID,
		collection: collection,
		cancel:     cancel,
		done:       make(chan struct{}),
		progress: ImportProgress{
			JobID:      jobID,
			Collection: collection,
			Phase:      PhaseStarting,
		},
	}

	m.mu.Lock()
	m.jobs[jobID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic in import job",
					"job_id", jobID,
					"collection", collection,
					"panic", r,
				)
				job.fail(fmt.Errorf("internal error: %v", r))
			}
			job.closeListeners()
			close(job.done)
			m.cleanup(jobID)
		}()
		m.run(jobCtx, job, format, schema, content)
	}()

	return jobID
}

func (m *ImportJobManager) run(ctx context.Context, job *importJob, format ExportFormat, schema []ColumnSchema, content []byte) {
	job.setPhase(PhaseParsing)

	rows, err := ParseImport(format, content)
	if err != nil {
		m.logger.Warn("import parse failed", "job_id", job.id, "collection", job.collection, "error", err)
		job.fail(err)
		return
	}

	job.mu.Lock()
	job.progress.Phase = PhaseApplying
	job.progress.Total = len(rows)
	job.mu.Unlock()
	job.notify()

	result := ImportRows(ctx, m.store, job.collection, schema, rows, func(imported, total int) {
		job.mu.Lock()
		job.progress.Imported = imported
		job.progress.Total = total
		job.mu.Unlock()
		if imported%100 == 0 || imported == total {
			job.notify()
		}
	})

	job.mu.Lock()
	job.result = &result
	job.progress.Imported = result.ImportedCount
	if ctx.Err() != nil {
		job.progress.Phase = PhaseCancelled
	} else if result.Success {
		job.progress.Phase = PhaseComplete
	} else {
		job.progress.Phase = PhaseFailed
		if len(result.Errors) > 0 {
			job.progress.Error = result.Errors[0]
		}
	}
	job.mu.Unlock()
	job.notify()

	m.logger.Info("import finished",
		"job_id", job.id,
		"collection", job.collection,
		"imported", result.ImportedCount,
		"errors", len(result.Errors),
	)
}

// Subscribe returns a channel receiving progress updates for a job. The
// current progress is sent immediately and the channel closes when the job
// finishes.
func (m *ImportJobManager) Subscribe(jobID string) (<-chan ImportProgress, error) {
	m.mu.RLock()
	job, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("import job not found: %s", jobID)
	}

	ch := make(chan ImportProgress, 10)
	job.mu.Lock()
	if job.finished {
		// Late subscriber: deliver the terminal progress and close.
		ch <- job.progress
		close(ch)
		job.mu.Unlock()
		return ch, nil
	}
	job.listeners = append(job.listeners, ch)
	select {
	case ch <- job.progress:
	default:
	}
	job.mu.Unlock()
	return ch, nil
}

// Progress returns the current progress without blocking.
func (m *ImportJobManager) Progress(jobID string) (ImportProgress, error) {
	m.mu.RLock()
	job, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return ImportProgress{}, fmt.Errorf("import job not found: %s", jobID)
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.progress, nil
}

// Result blocks until the job finishes and returns its outcome.
func (m *ImportJobManager) Result(jobID string) (*ImportResult, error) {
	m.mu.RLock()
	job, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("import job not found: %s", jobID)
	}
	<-job.done
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.result, nil
}

// Cancel aborts a running job. The batch stops at the next row boundary.
func (m *ImportJobManager) Cancel(jobID string) error {
	m.mu.RLock()
	job, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("import job not found: %s", jobID)
	}
	job.cancel()
	return nil
}

// Wait blocks until all running jobs finish, for graceful shutdown.
func (m *ImportJobManager) Wait() {
	m.wg.Wait()
}

func (m *ImportJobManager) cleanup(jobID string) {
	time.AfterFunc(m.linger, func() {
		m.mu.Lock()
		delete(m.jobs, jobID)
		m.mu.Unlock()
	})
}
