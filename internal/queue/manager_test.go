package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"zipfetch/internal/app"
	"zipfetch/internal/domain"
	"zipfetch/internal/infra/config"
)

type fakeStore struct {
	mu     sync.Mutex
	saved  map[string]*domain.Run
	active []*domain.Run
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: make(map[string]*domain.Run)}
}

func (s *fakeStore) SaveRun(run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.saved[run.ID] = &cp
	return nil
}

func (s *fakeStore) GetRun(id string) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[id], nil
}

func (s *fakeStore) GetRuns() ([]*domain.Run, error) {
	return nil, nil
}

func (s *fakeStore) GetActiveRuns() ([]*domain.Run, error) {
	return s.active, nil
}

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	err  error

	// blockUntilCancelled makes Run hang until its context is cancelled,
	// so tests can exercise Cancel.
	blockUntilCancelled bool

	started chan string
}

func (r *fakeRunner) Run(ctx context.Context, run *domain.Run) error {
	r.mu.Lock()
	r.runs = append(r.runs, run.ID)
	r.mu.Unlock()

	if r.started != nil {
		r.started <- run.ID
	}

	if r.blockUntilCancelled {
		<-ctx.Done()
		run.Stage = domain.StageFailed
		return ctx.Err()
	}

	if r.err != nil {
		run.Stage = domain.StageFailed
		return r.err
	}

	run.Stage = domain.StageDone
	return nil
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.runs))
	copy(out, r.runs)
	return out
}

func testAppContext(t *testing.T, runner app.Runner, store app.Store) *app.Context {
	t.Helper()
	cfg := &config.Config{}
	cfg.Download.OutDir = t.TempDir()
	return &app.Context{
		Config: cfg,
		Store:  store,
		Runner: runner,
	}
}

func TestAddQueuesAndPersistsRun(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{}
	mgr := NewManager(testAppContext(t, runner, store), false)

	run, err := mgr.Add("http://example.test/models/weights.zip", true)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if run.ID == "" {
		t.Error("expected a generated run ID")
	}
	if run.Stage != domain.StageIdle {
		t.Errorf("new run stage = %q, want %q", run.Stage, domain.StageIdle)
	}
	if got := len(mgr.GetAllRuns()); got != 1 {
		t.Errorf("queue length = %d, want 1", got)
	}

	store.mu.Lock()
	_, persisted := store.saved[run.ID]
	store.mu.Unlock()
	if !persisted {
		t.Error("run was not persisted on Add")
	}
}

func TestAddRejectsURLWithoutFileName(t *testing.T) {
	mgr := NewManager(testAppContext(t, &fakeRunner{}, newFakeStore()), false)

	if _, err := mgr.Add("http://example.test/", false); err == nil {
		t.Fatal("expected an error for a URL with no file name")
	}
}

func TestStartProcessesQueueInOrder(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{started: make(chan string, 4)}
	mgr := NewManager(testAppContext(t, runner, store), false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := mgr.Add("http://example.test/a.zip", false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	second, err := mgr.Add("http://example.test/b.zip", false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	done := make(chan struct{})
	go func() {
		mgr.Start(ctx)
		close(done)
	}()

	waitFor(t, runner.started, first.ID)
	waitFor(t, runner.started, second.ID)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	ran := runner.ran()
	if len(ran) != 2 || ran[0] != first.ID || ran[1] != second.ID {
		t.Errorf("runs executed in order %v, want [%s %s]", ran, first.ID, second.ID)
	}
	if got := len(mgr.GetAllRuns()); got != 0 {
		t.Errorf("finished runs left in live queue: %d", got)
	}
}

func TestCancelStopsActiveRun(t *testing.T) {
	store := newFakeStore()
	runner := &fakeRunner{blockUntilCancelled: true, started: make(chan string, 1)}
	mgr := NewManager(testAppContext(t, runner, store), false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mgr.Start(ctx)

	run, err := mgr.Add("http://example.test/big.zip", false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	waitFor(t, runner.started, run.ID)

	if !mgr.Cancel(run.ID) {
		t.Fatal("Cancel returned false for an active run")
	}

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		saved := store.saved[run.ID]
		store.mu.Unlock()
		if saved != nil && saved.Error == "Cancelled by user" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("cancelled run was never finalized")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCancelUnknownRun(t *testing.T) {
	mgr := NewManager(testAppContext(t, &fakeRunner{}, newFakeStore()), false)

	if mgr.Cancel("no-such-id") {
		t.Error("Cancel reported success for an unknown run")
	}
}

func TestGetRunFallsBackToStore(t *testing.T) {
	store := newFakeStore()
	finished := &domain.Run{ID: "old-run", Stage: domain.StageDone}
	store.saved[finished.ID] = finished

	mgr := NewManager(testAppContext(t, &fakeRunner{}, store), false)

	got, ok := mgr.GetRun("old-run")
	if !ok || got == nil {
		t.Fatal("expected the finished run from the store")
	}
	if got.Stage != domain.StageDone {
		t.Errorf("stage = %q, want %q", got.Stage, domain.StageDone)
	}

	if _, ok := mgr.GetRun("missing"); ok {
		t.Error("GetRun reported success for an unknown ID")
	}
}

func TestLoadExistingRequeuesActiveRuns(t *testing.T) {
	store := newFakeStore()
	store.active = []*domain.Run{
		{ID: "resume-me", Stage: domain.StageDownloading},
	}

	mgr := NewManager(testAppContext(t, &fakeRunner{}, store), true)

	runs := mgr.GetAllRuns()
	if len(runs) != 1 {
		t.Fatalf("queue length = %d, want 1", len(runs))
	}
	if runs[0].Stage != domain.StageIdle {
		t.Errorf("requeued run stage = %q, want %q", runs[0].Stage, domain.StageIdle)
	}
}

func waitFor(t *testing.T, ch chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("run %q started, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run %q never started", want)
	}
}
