package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/colannotate/internal/annotation"
	"github.com/JonMunkholm/colannotate/internal/logging"
	"github.com/JonMunkholm/colannotate/internal/table"
)

// ErrRunNotFound is returned for unknown or expired run IDs.
var ErrRunNotFound = errors.New("annotation run not found")

// DefaultRunTimeout bounds a whole annotation run.
const DefaultRunTimeout = 15 * time.Minute

// DefaultRetention is how long finished runs stay in memory.
const DefaultRetention = 30 * time.Minute

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusSucceeded RunStatus = "succeeded"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Run describes an annotation run. While the run is active, Report is nil
// and Annotated counts the columns committed so far.
type Run struct {
	ID         string     `json:"id"`
	Dataset    Dataset    `json:"dataset"`
	Source     string     `json:"source"`
	Status     RunStatus  `json:"status"`
	Step       Step       `json:"step,omitempty"`
	Columns    int        `json:"columns"`
	Annotated  int        `json:"annotated"`
	Report     *Report    `json:"report,omitempty"`
	Error      string     `json:"error,omitempty"`
	Code       string     `json:"code,omitempty"`
	Action     string     `json:"action,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Done reports whether the run has finished.
func (r Run) Done() bool { return r.Status != StatusRunning }

// RunStore persists finished runs beyond the in-memory retention window.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// ServiceConfig tunes a Service.
type ServiceConfig struct {
	RunTimeout time.Duration
	Retention  time.Duration
	// Store is optional.
	Store RunStore
}

// Service runs annotations in the background and tracks their progress.
type Service struct {
	engine  *Engine
	limiter *RunLimiter
	cfg     ServiceConfig

	mu   sync.RWMutex
	runs map[string]*activeRun
}

type activeRun struct {
	schema *annotation.Schema
	cancel context.CancelFunc
	done   chan struct{}
	closed sync.Once

	mu        sync.Mutex
	info      Run
	listeners []chan Run
}

// NewService creates a run service.
func NewService(engine *Engine, limiter *RunLimiter, cfg ServiceConfig) *Service {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if limiter == nil {
		limiter = NewRunLimiter(DefaultMaxConcurrentRuns, DefaultMaxWaitTime)
	}
	return &Service{
		engine:  engine,
		limiter: limiter,
		cfg:     cfg,
		runs:    make(map[string]*activeRun),
	}
}

// Start begins an asynchronous annotation run and returns its ID.
//
// Returns ErrTooManyRuns if no run slot frees up within the limiter's wait.
func (s *Service) Start(ctx context.Context, tbl table.Table, ds Dataset, source string) (string, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(logging.ContextWithRunID(context.Background(), runID), s.cfg.RunTimeout)

	run := &activeRun{
		schema: annotation.NewSchema(),
		cancel: cancel,
		done:   make(chan struct{}),
		info: Run{
			ID:        runID,
			Dataset:   ds,
			Source:    source,
			Status:    StatusRunning,
			Columns:   len(tbl.Columns()),
			StartedAt: time.Now().UTC(),
		},
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	// Process in background with panic recovery to ensure limiter release
	go func() {
		defer s.limiter.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in annotation run", "run_id", runID, "panic", r)
				s.finish(run, nil, fmt.Errorf("internal error: %v", r))
			}
		}()
		s.process(runCtx, run, tbl)
	}()

	logging.FromContext(ctx).Info("annotation run started",
		"run_id", runID, "dataset", ds.Name, "source", source, "columns", run.info.Columns)
	return runID, nil
}

func (s *Service) process(ctx context.Context, run *activeRun, tbl table.Table) {
	engine := s.engine.WithStepHook(func(step Step) {
		run.mu.Lock()
		run.info.Step = step
		run.info.Annotated = run.schema.Len()
		run.mu.Unlock()
		run.notify()
	})

	report, err := engine.AnnotateInto(ctx, tbl, run.info.Dataset, run.schema)
	s.finish(run, &report, err)
}

// finish records the outcome, persists it and schedules cleanup.
func (s *Service) finish(run *activeRun, report *Report, err error) {
	now := time.Now().UTC()

	run.mu.Lock()
	run.info.Report = report
	run.info.Annotated = run.schema.Len()
	run.info.FinishedAt = &now
	switch {
	case err == nil:
		run.info.Status = StatusSucceeded
	case errors.Is(err, context.Canceled):
		run.info.Status = StatusCancelled
	default:
		run.info.Status = StatusFailed
	}
	if err != nil {
		msg := MapError(err)
		run.info.Error, run.info.Code, run.info.Action = err.Error(), msg.Code, msg.Action
	}
	info := run.info
	run.mu.Unlock()

	if s.cfg.Store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.cfg.Store.SaveRun(ctx, info); err != nil {
			slog.Error("failed to persist annotation run", "run_id", info.ID, "error", err)
		}
	}

	run.notify()
	run.closeListeners()

	slog.Info("annotation run finished", "run_id", info.ID, "status", info.Status, "code", info.Code)
	s.cleanup(info.ID, s.cfg.Retention)
}

// Get returns the current state of a run, falling back to the store for
// runs no longer held in memory.
func (s *Service) Get(ctx context.Context, runID string) (Run, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if ok {
		return run.snapshot(), nil
	}
	if s.cfg.Store != nil {
		return s.cfg.Store.GetRun(ctx, runID)
	}
	return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
}

// List returns known runs, newest first. Summaries omit the report.
func (s *Service) List(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	out := make([]Run, 0, len(s.runs))
	seen := make(map[string]bool, len(s.runs))
	for id, run := range s.runs {
		info := run.snapshot()
		info.Report = nil
		out = append(out, info)
		seen[id] = true
	}
	s.mu.RUnlock()

	if s.cfg.Store != nil {
		stored, err := s.cfg.Store.ListRuns(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list stored runs: %w", err)
		}
		for _, r := range stored {
			if !seen[r.ID] {
				r.Report = nil
				out = append(out, r)
			}
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Wait blocks until the run finishes or ctx is done.
func (s *Service) Wait(ctx context.Context, runID string) (Run, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return s.Get(ctx, runID)
	}
	select {
	case <-run.done:
		return run.snapshot(), nil
	case <-ctx.Done():
		return run.snapshot(), ctx.Err()
	}
}

// Subscribe returns a channel of run updates. The current state is sent
// immediately and the channel is closed when the run finishes.
func (s *Service) Subscribe(runID string) (<-chan Run, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}

	ch := make(chan Run, 10)

	run.mu.Lock()
	defer run.mu.Unlock()
	ch <- run.info
	select {
	case <-run.done:
		close(ch)
	default:
		run.listeners = append(run.listeners, ch)
	}
	return ch, nil
}

// Cancel stops an in-progress run.
func (s *Service) Cancel(runID string) error {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	run.cancel()
	return nil
}

// LimiterStatus reports run slot usage.
func (s *Service) LimiterStatus() RunLimiterStatus {
	return s.limiter.Status()
}

// Drain waits for every active run to finish.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (run *activeRun) snapshot() Run {
	run.mu.Lock()
	defer run.mu.Unlock()
	info := run.info
	if !info.Done() {
		info.Annotated = run.schema.Len()
	}
	return info
}

// notify sends the current state to all listeners.
func (run *activeRun) notify() {
	run.mu.Lock()
	defer run.mu.Unlock()

	for _, ch := range run.listeners {
		select {
		case ch <- run.info:
		default:
			// Listener is slow, skip this update
		}
	}
}

// closeListeners closes all listener channels and marks the run done.
// Calls after the first are no-ops.
func (run *activeRun) closeListeners() {
	run.closed.Do(func() {
		run.mu.Lock()
		defer run.mu.Unlock()

		for _, ch := range run.listeners {
			close(ch)
		}
		run.listeners = nil
		close(run.done)
	})
}

// cleanup removes the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}
