package ipc

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rogers-f/clash-section-engine/internal/batch"
	"github.com/rogers-f/clash-section-engine/internal/bridge"
	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/progress"
)

// ErrManagerStopped is returned by Start once the manager has stopped.
var ErrManagerStopped = errors.New("run manager stopped")

// Executor runs one command invocation to completion.
type Executor interface {
	Execute(ctx context.Context, req bridge.ExecuteRequest) (bridge.ExecuteResult, error)
}

// StartRequest names the test to run and optionally overrides statuses.
type StartRequest struct {
	Test     string
	Statuses []domain.ClashStatus
}

type activeRun struct {
	id       string
	req      StartRequest
	cancel   *batch.CancelFlag
	recorder *progress.Recorder
	started  chan struct{}
	done     chan struct{}
	result   bridge.ExecuteResult
	err      error
}

// RunManager serializes runs onto a single worker goroutine, the only
// goroutine that ever drives the view. At most one run is active.
type RunManager struct {
	exec   Executor
	logger *slog.Logger

	jobs     chan *activeRun
	stopCh   chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	active *activeRun
	last   *activeRun
}

// NewRunManager creates a RunManager. Call Run to start its worker.
func NewRunManager(exec Executor, logger *slog.Logger) *RunManager {
	return &RunManager{
		exec:   exec,
		logger: logging.Or(logger, "runs"),
		jobs:   make(chan *activeRun),
		stopCh: make(chan struct{}),
	}
}

// Run executes submitted runs one at a time until ctx is done or Stop is
// called. A run in flight when ctx is cancelled stops at its next item.
func (m *RunManager) Run(ctx context.Context) {
	for {
		select {
		case r := <-m.jobs:
			m.execute(ctx, r)
		case <-m.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop ends Run after the current run. It is safe to call more than once.
func (m *RunManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *RunManager) execute(ctx context.Context, r *activeRun) {
	startOnce := sync.Once{}
	res, err := m.exec.Execute(ctx, bridge.ExecuteRequest{
		TestName: r.req.Test,
		Statuses: r.req.Statuses,
		Cancel:   r.cancel,
		Progress: r.recorder,
		RunID:    r.id,
		OnStart:  func(domain.RunRecord) { startOnce.Do(func() { close(r.started) }) },
	})
	if err != nil {
		m.logger.Warn("run ended with error", "run_id", r.id, "error", err)
	} else {
		m.logger.Info("run finished", "run_id", r.id, "succeeded", res.Summary.Succeeded, "failed", len(res.Summary.Failed))
	}

	m.mu.Lock()
	r.result, r.err = res, err
	m.active = nil
	m.last = r
	m.mu.Unlock()
	close(r.done)
}

// Start submits a run and waits until it has either begun processing or
// failed before its first item. Errors that stop a run before it begins are
// returned here; a second run while one is active is ErrRunInProgress.
func (m *RunManager) Start(ctx context.Context, req StartRequest) (string, error) {
	r := &activeRun{
		id:       uuid.New().String(),
		req:      req,
		cancel:   &batch.CancelFlag{},
		recorder: &progress.Recorder{},
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return "", domain.ErrRunInProgress
	}
	m.active = r
	m.mu.Unlock()

	select {
	case m.jobs <- r:
	case <-m.stopCh:
		m.release(r)
		return "", ErrManagerStopped
	case <-ctx.Done():
		m.release(r)
		return "", ctx.Err()
	}

	select {
	case <-r.started:
		return r.id, nil
	case <-r.done:
		if r.err != nil {
			return "", r.err
		}
		return r.id, nil
	}
}

func (m *RunManager) release(r *activeRun) {
	m.mu.Lock()
	if m.active == r {
		m.active = nil
	}
	m.mu.Unlock()
}

// Cancel asks the active run to stop at its next item boundary. It reports
// false when runID is not the active run.
func (m *RunManager) Cancel(runID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.id != runID {
		return false
	}
	m.active.cancel.Cancel()
	return true
}

// Live is the in-memory view of a run known to this process.
type Live struct {
	Active   bool
	Progress *domain.ProgressUpdate
	Summary  *batch.Summary
}

// Live returns what the manager knows about runID beyond the stored row.
func (m *RunManager) Live(runID string) (Live, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.active != nil && m.active.id == runID:
		var live Live
		live.Active = true
		if u, ok := m.active.recorder.Last(); ok {
			live.Progress = &u
		}
		return live, true
	case m.last != nil && m.last.id == runID:
		var live Live
		if u, ok := m.last.recorder.Last(); ok {
			live.Progress = &u
		}
		sum := m.last.result.Summary
		live.Summary = &sum
		return live, true
	}
	return Live{}, false
}

// ActiveID returns the ID of the active run, or "".
func (m *RunManager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ""
	}
	return m.active.id
}
