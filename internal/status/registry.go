package status

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
)

var (
	// ErrAlreadyRunning rejects a start request while a job of the same
	// class is in flight. Callers surface it as a 409; requests are never
	// queued.
	ErrAlreadyRunning = errors.New("job already running")

	// ErrNotRunning rejects a cancel request for a job that is not running.
	ErrNotRunning = errors.New("job not running")
)

// Broadcaster receives every registry mutation, synchronously.
type Broadcaster interface {
	BroadcastStatus(class model.JobClass, status model.JobStatus)
}

// Registry holds the current status of each job class. It is the only
// shared mutable state in the system: one slot per class, every mutation
// under the mutex and followed by a broadcast before the lock is released,
// so registry state and broadcast state never diverge.
type Registry struct {
	mu          sync.Mutex
	slots       map[model.JobClass]model.JobStatus
	broadcaster Broadcaster
	log         *zap.Logger
}

func NewRegistry(b Broadcaster, log *zap.Logger) *Registry {
	slots := make(map[model.JobClass]model.JobStatus, len(model.ValidJobClasses))
	for _, class := range model.ValidJobClasses {
		slots[class] = model.IdleStatus()
	}
	return &Registry{slots: slots, broadcaster: b, log: log}
}

// Get returns the current status of one job class.
func (r *Registry) Get(class model.JobClass) model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyStatus(r.slots[class])
}

// Snapshot returns the current status of all job classes, for replay to
// newly connected observers.
func (r *Registry) Snapshot() map[model.JobClass]model.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := make(map[model.JobClass]model.JobStatus, len(r.slots))
	for class, st := range r.slots {
		snap[class] = copyStatus(st)
	}
	return snap
}

// TryStart atomically transitions a class from a settled state to running.
// It returns ErrAlreadyRunning if a job of that class is in flight; this
// check-and-set is the mutual-exclusion guarantee for the whole system.
func (r *Registry) TryStart(class model.JobClass, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[class].State == model.JobStateRunning {
		return ErrAlreadyRunning
	}

	st := model.JobStatus{State: model.JobStateRunning}
	if message != "" {
		st.Message = &message
	}
	r.set(class, st)
	return nil
}

// Finish settles a class as finished with its aggregated results. If the
// run was cancelled mid-flight the transition is dropped so cancelled is
// not overwritten.
func (r *Registry) Finish(class model.JobClass, results []model.UnitResult, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[class].State == model.JobStateCancelled {
		r.log.Info("dropping finish transition for cancelled job", zap.String("class", string(class)))
		return
	}

	st := model.JobStatus{State: model.JobStateFinished, Results: results}
	if message != "" {
		st.Message = &message
	}
	r.set(class, st)
}

// Fail settles a class as errored. Partial per-unit results, if any, are
// kept alongside the error. Cancelled runs keep their cancelled state.
func (r *Registry) Fail(class model.JobClass, errMsg string, results []model.UnitResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[class].State == model.JobStateCancelled {
		r.log.Info("dropping fail transition for cancelled job", zap.String("class", string(class)))
		return
	}

	r.set(class, model.JobStatus{
		State:   model.JobStateError,
		Results: results,
		Error:   &errMsg,
	})
}

// Cancel flips a running class to cancelled. Cancellation is advisory:
// already-spawned worker processes are not terminated, the status change
// only tells observers the run's outcome will be discarded.
func (r *Registry) Cancel(class model.JobClass) (model.JobStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[class].State != model.JobStateRunning {
		return copyStatus(r.slots[class]), ErrNotRunning
	}

	msg := "cancellation requested"
	st := model.JobStatus{State: model.JobStateCancelled, Message: &msg}
	r.set(class, st)
	return copyStatus(st), nil
}

// Cancelled reports whether a class currently sits in the cancelled state.
// The pipeline orchestrator polls this between fan-out and finalization.
func (r *Registry) Cancelled(class model.JobClass) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[class].State == model.JobStateCancelled
}

// set stores and broadcasts while holding the lock.
func (r *Registry) set(class model.JobClass, st model.JobStatus) {
	r.slots[class] = st
	r.log.Info("job status transition",
		zap.String("class", string(class)),
		zap.String("state", string(st.State)),
	)
	if r.broadcaster != nil {
		r.broadcaster.BroadcastStatus(class, copyStatus(st))
	}
}

func copyStatus(st model.JobStatus) model.JobStatus {
	out := st
	if st.Results != nil {
		out.Results = make([]model.UnitResult, len(st.Results))
		copy(out.Results, st.Results)
	}
	return out
}
