package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cafescout/cafescout/engine/events"
)

// DefaultStopTimeout bounds each wait for a previous run to finish.
const DefaultStopTimeout = 15 * time.Second

var (
	// ErrBusy is returned by Start when the previous run would not finish.
	ErrBusy = errors.New("previous run is still active")
	// ErrNoRun is returned by Wait before any run was started.
	ErrNoRun = errors.New("no run started")
)

type activeRun struct {
	id     string
	state  *RunState
	cancel context.CancelFunc
	done   chan struct{}
	out    Outcome
}

// Runner owns at most one active run of a Worker.
type Runner struct {
	worker      *Worker
	stopTimeout time.Duration
	log         *zap.Logger

	startMu sync.Mutex
	mu      sync.Mutex
	cur     *activeRun
}

// NewRunner creates a Runner. A non-positive stopTimeout uses DefaultStopTimeout.
func NewRunner(w *Worker, stopTimeout time.Duration) *Runner {
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	return &Runner{worker: w, stopTimeout: stopTimeout, log: w.log.Named("runner")}
}

// Start launches req in the background and returns its run id. An active
// run is asked to stop first; if it ignores the flag for stopTimeout its
// context is cancelled, and if it still has not finished after another
// stopTimeout Start gives up with ErrBusy.
func (r *Runner) Start(ctx context.Context, req Request) (string, error) {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	if prev := r.current(); prev != nil && !r.stopAndWait(prev) {
		return "", ErrBusy
	}

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(ctx)
	run := &activeRun{
		id:     req.RunID,
		state:  NewRunState(req.Existing),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.mu.Lock()
	r.cur = run
	r.mu.Unlock()

	go func() {
		defer close(run.done)
		defer cancel()
		run.out = r.worker.run(ctx, run.state, req)
	}()
	r.log.Info("run started", zap.String("run_id", run.id))
	return run.id, nil
}

func (r *Runner) current() *activeRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

func (r *Runner) stopAndWait(run *activeRun) bool {
	run.state.RequestStop()
	if waitDone(run.done, r.stopTimeout) {
		return true
	}
	r.log.Warn("run ignored stop request, cancelling", zap.String("run_id", run.id))
	run.cancel()
	return waitDone(run.done, r.stopTimeout)
}

func waitDone(done <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Stop asks the active run to stop at its next checkpoint. It reports
// whether a run was active.
func (r *Runner) Stop() bool {
	run := r.current()
	if run == nil {
		return false
	}
	select {
	case <-run.done:
		return false
	default:
	}
	run.state.RequestStop()
	return true
}

// Cancel cancels the active run's context, aborting in-flight requests.
func (r *Runner) Cancel() {
	if run := r.current(); run != nil {
		run.state.RequestStop()
		run.cancel()
	}
}

// Wait blocks until the most recent run finishes.
func (r *Runner) Wait(ctx context.Context) (Outcome, error) {
	run := r.current()
	if run == nil {
		return Outcome{}, ErrNoRun
	}
	select {
	case <-run.done:
		return run.out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Active returns the id and emitted count of the running run, if any.
func (r *Runner) Active() (runID string, emitted int, ok bool) {
	run := r.current()
	if run == nil {
		return "", 0, false
	}
	select {
	case <-run.done:
		return "", 0, false
	default:
		return run.id, run.state.Emitted(), true
	}
}

// Notify publishes a log line on the active run's event stream. It reports
// whether a run was active to receive it.
func (r *Runner) Notify(sev events.Severity, msg string) bool {
	runID, _, ok := r.Active()
	if !ok {
		return false
	}
	events.NewEmitter(r.worker.deps.Events, runID).Log(sev, msg)
	return true
}
