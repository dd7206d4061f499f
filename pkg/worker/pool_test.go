package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
	storefs "github.com/nlpipe/nlpipe/pkg/store/fs"
	"github.com/nlpipe/nlpipe/pkg/task"
)

// stubProcessor lets tests script module behavior.
type stubProcessor struct {
	name      string
	statusErr error
	process   func(ctx context.Context, id string, doc []byte) ([]byte, error)
}

func (s *stubProcessor) Name() string { return s.name }

func (s *stubProcessor) CheckStatus(ctx context.Context) error { return s.statusErr }

func (s *stubProcessor) Process(ctx context.Context, id string, doc []byte) ([]byte, error) {
	if s.process != nil {
		return s.process(ctx, id, doc)
	}
	return doc, nil
}

func (s *stubProcessor) Convert(id string, result []byte, format string) ([]byte, error) {
	return nil, processor.ErrCannotConvert
}

func newTestStore(t *testing.T) *storefs.Store {
	t.Helper()
	st, err := storefs.New(storefs.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("creating store failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newTestRegistry(t *testing.T, procs ...processor.Processor) *processor.Registry {
	t.Helper()
	registry := processor.NewRegistry()
	for _, p := range procs {
		if err := registry.Register(p); err != nil {
			t.Fatalf("registering %s failed: %v", p.Name(), err)
		}
	}
	return registry
}

func waitForStatus(t *testing.T, st store.Interface, module, id string, want task.Status, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		got, err := st.Status(context.Background(), module, id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if got == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s/%s never reached %s within %v", module, id, want, timeout)
}

func TestNew_Validation(t *testing.T) {
	st := newTestStore(t)
	registry := newTestRegistry(t, processor.NewUpper())

	if _, err := New(nil, registry, DefaultConfig()); err == nil {
		t.Error("expected error for nil store")
	}
	if _, err := New(st, nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil registry")
	}

	cfg := DefaultConfig()
	cfg.Modules = []string{"no-such-module"}
	if _, err := New(st, registry, cfg); err == nil {
		t.Error("expected error for unknown module")
	}

	if _, err := New(st, processor.NewRegistry(), DefaultConfig()); err == nil {
		t.Error("expected error for empty registry with no modules configured")
	}
}

func TestNew_DefaultsToAllRegistered(t *testing.T) {
	st := newTestStore(t)
	registry := newTestRegistry(t,
		processor.NewUpper(),
		&stubProcessor{name: "echo"},
	)

	pool, err := New(st, registry, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(pool.modules) != 2 {
		t.Errorf("expected 2 modules, got %v", pool.modules)
	}
}

func TestPool_ProcessesQueuedTasks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	registry := newTestRegistry(t, processor.NewUpper())

	docs := []string{"hello", "world", "nlpipe"}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		id, err := st.Enqueue(ctx, "upper", []byte(doc), store.EnqueueOptions{})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids[i] = id
	}

	cfg := DefaultConfig()
	cfg.Processes = 2
	cfg.QuitOnEmpty = true
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := pool.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for i, id := range ids {
		status, err := st.Status(ctx, "upper", id)
		if err != nil {
			t.Fatalf("Status failed: %v", err)
		}
		if status != task.StatusDone {
			t.Fatalf("task %s: expected DONE, got %s", id, status)
		}
		result, err := st.Result(ctx, "upper", id, "")
		if err != nil {
			t.Fatalf("Result failed: %v", err)
		}
		if got, want := string(result), strings.ToUpper(docs[i]); got != want {
			t.Errorf("task %s: expected result %q, got %q", id, want, got)
		}
	}

	processed, failed := pool.Stats()
	if processed != 3 {
		t.Errorf("expected 3 processed, got %d", processed)
	}
	if failed != 0 {
		t.Errorf("expected 0 failed, got %d", failed)
	}
}

func TestPool_StoresProcessingError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	failing := &stubProcessor{
		name: "failing",
		process: func(ctx context.Context, id string, doc []byte) ([]byte, error) {
			return nil, errors.New("kaboom")
		},
	}
	registry := newTestRegistry(t, failing)

	id, err := st.Enqueue(ctx, "failing", []byte("doomed"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.QuitOnEmpty = true
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := pool.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	status, err := st.Status(ctx, "failing", id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != task.StatusError {
		t.Fatalf("expected ERROR, got %s", status)
	}

	_, err = st.Result(ctx, "failing", id, "")
	var procErr *task.ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if procErr.Message != "kaboom" {
		t.Errorf("expected message %q, got %q", "kaboom", procErr.Message)
	}

	processed, failed := pool.Stats()
	if processed != 0 {
		t.Errorf("expected 0 processed, got %d", processed)
	}
	if failed != 1 {
		t.Errorf("expected 1 failed, got %d", failed)
	}
}

func TestPool_RecoversFromPanickingModule(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	panicking := &stubProcessor{
		name: "panicking",
		process: func(ctx context.Context, id string, doc []byte) ([]byte, error) {
			panic("boom")
		},
	}
	registry := newTestRegistry(t, panicking)

	id, err := st.Enqueue(ctx, "panicking", []byte("doc"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.QuitOnEmpty = true
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := pool.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	_, err = st.Result(ctx, "panicking", id, "")
	var procErr *task.ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if !strings.Contains(procErr.Message, "panic: boom") {
		t.Errorf("expected panic message, got %q", procErr.Message)
	}
}

func TestPool_FailsFastOnStatusCheck(t *testing.T) {
	st := newTestStore(t)
	broken := &stubProcessor{
		name:      "broken",
		statusErr: fmt.Errorf("backend unreachable"),
	}
	registry := newTestRegistry(t, broken)

	cfg := DefaultConfig()
	cfg.QuitOnEmpty = true
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = pool.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to fail")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("expected the module name in the error, got %v", err)
	}
}

func TestPool_RunTwice(t *testing.T) {
	st := newTestStore(t)
	registry := newTestRegistry(t, processor.NewUpper())

	cfg := DefaultConfig()
	cfg.QuitOnEmpty = true
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := pool.Run(context.Background()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	if err := pool.Run(context.Background()); err == nil {
		t.Error("expected second Run to fail")
	}
}

func TestPool_ContextCancelStops(t *testing.T) {
	st := newTestStore(t)
	registry := newTestRegistry(t, processor.NewUpper())

	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	id, err := st.Enqueue(context.Background(), "upper", []byte("hello"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitForStatus(t, st, "upper", id, task.StatusDone, 5*time.Second)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestPool_WatchWakesIdleRunner(t *testing.T) {
	st := newTestStore(t)
	registry := newTestRegistry(t, processor.NewUpper())

	// A poll interval this long means only the watcher can deliver the
	// task before the test deadline.
	cfg := DefaultConfig()
	cfg.PollInterval = time.Minute
	cfg.Watch = true
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- pool.Run(ctx) }()

	// Let the runner finish its first (empty) claim and go idle
	time.Sleep(200 * time.Millisecond)

	id, err := st.Enqueue(context.Background(), "upper", []byte("wake up"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitForStatus(t, st, "upper", id, task.StatusDone, 5*time.Second)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestPool_QuitOnEmptyWithEmptyQueue(t *testing.T) {
	st := newTestStore(t)
	registry := newTestRegistry(t, processor.NewUpper())

	cfg := DefaultConfig()
	cfg.QuitOnEmpty = true
	pool, err := New(st, registry, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- pool.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return on an empty queue")
	}

	processed, failed := pool.Stats()
	if processed != 0 || failed != 0 {
		t.Errorf("expected no activity, got processed=%d failed=%d", processed, failed)
	}
}

func TestModuleForQueueFile(t *testing.T) {
	got := moduleForQueueFile("/data/nlpipe/upper/queue/0x5d41402abc4b2a76b9719d911017c592")
	if got != "upper" {
		t.Errorf("expected module %q, got %q", "upper", got)
	}
}
