package status

import (
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/kpipulse/api/internal/model"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []model.WSStatusMessage
}

func (b *recordingBroadcaster) BroadcastStatus(class model.JobClass, st model.JobStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, model.WSStatusMessage{Job: class, Status: st})
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func newTestRegistry() (*Registry, *recordingBroadcaster) {
	b := &recordingBroadcaster{}
	return NewRegistry(b, zap.NewNop()), b
}

func TestInitialSnapshotAllIdle(t *testing.T) {
	r, _ := newTestRegistry()
	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 classes, got %d", len(snap))
	}
	for class, st := range snap {
		if st.State != model.JobStateIdle {
			t.Fatalf("class %s: expected idle, got %s", class, st.State)
		}
	}
}

func TestTryStartRejectsSecondRun(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.TryStart(model.JobClassPipeline, "started"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := r.TryStart(model.JobClassPipeline, "started"); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	// a different class owns a disjoint slot
	if err := r.TryStart(model.JobClassTraining, ""); err != nil {
		t.Fatalf("training start should not conflict: %v", err)
	}
}

func TestConcurrentStartsAdmitExactlyOne(t *testing.T) {
	r, _ := newTestRegistry()

	const n = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.TryStart(model.JobClassAnalysis, ""); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly 1 accepted start, got %d", accepted)
	}
}

func TestFinishCarriesResultsAndBroadcasts(t *testing.T) {
	r, b := newTestRegistry()
	if err := r.TryStart(model.JobClassPipeline, ""); err != nil {
		t.Fatal(err)
	}
	results := []model.UnitResult{
		{Line: "D", Status: model.UnitStatusSuccess, Inserted: 3},
	}
	r.Finish(model.JobClassPipeline, results, "done")

	st := r.Get(model.JobClassPipeline)
	if st.State != model.JobStateFinished {
		t.Fatalf("expected finished, got %s", st.State)
	}
	if len(st.Results) != 1 || st.Results[0].Inserted != 3 {
		t.Fatalf("unexpected results: %+v", st.Results)
	}
	if b.count() != 2 { // start + finish
		t.Fatalf("expected 2 broadcasts, got %d", b.count())
	}
}

func TestCancelOnlyWhileRunning(t *testing.T) {
	r, _ := newTestRegistry()

	if _, err := r.Cancel(model.JobClassPipeline); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning on idle, got %v", err)
	}

	if err := r.TryStart(model.JobClassPipeline, ""); err != nil {
		t.Fatal(err)
	}
	st, err := r.Cancel(model.JobClassPipeline)
	if err != nil {
		t.Fatalf("cancel while running: %v", err)
	}
	if st.State != model.JobStateCancelled {
		t.Fatalf("expected cancelled, got %s", st.State)
	}

	if _, err := r.Cancel(model.JobClassPipeline); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning after cancel, got %v", err)
	}
}

func TestFinishDroppedAfterCancel(t *testing.T) {
	r, _ := newTestRegistry()
	if err := r.TryStart(model.JobClassPipeline, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Cancel(model.JobClassPipeline); err != nil {
		t.Fatal(err)
	}

	r.Finish(model.JobClassPipeline, nil, "late finish")
	if st := r.Get(model.JobClassPipeline); st.State != model.JobStateCancelled {
		t.Fatalf("finish overwrote cancelled: %s", st.State)
	}

	r.Fail(model.JobClassPipeline, "late failure", nil)
	if st := r.Get(model.JobClassPipeline); st.State != model.JobStateCancelled {
		t.Fatalf("fail overwrote cancelled: %s", st.State)
	}
}

func TestSnapshotEqualsLastBroadcast(t *testing.T) {
	r, b := newTestRegistry()
	if err := r.TryStart(model.JobClassTraining, "training started"); err != nil {
		t.Fatal(err)
	}
	r.Fail(model.JobClassTraining, "boom", nil)

	snap := r.Snapshot()

	b.mu.Lock()
	last := b.events[len(b.events)-1]
	b.mu.Unlock()

	if last.Job != model.JobClassTraining {
		t.Fatalf("unexpected last broadcast class %s", last.Job)
	}
	if got := snap[model.JobClassTraining]; got.State != last.Status.State {
		t.Fatalf("snapshot %s != last broadcast %s", got.State, last.Status.State)
	}
}
