// Package worker runs processing modules against a task store.
//
// A pool claims queued tasks, feeds them to their module's processor and
// stores the outcome. Because the pool only talks to the store interface,
// the same worker binary drains a local directory or a remote server.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/internal/telemetry"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
)

// Config holds the worker pool configuration.
type Config struct {
	// Modules are the module names to work on. Empty means every module
	// registered on the pool's registry.
	Modules []string

	// Processes is the number of concurrent runners per module.
	// Default: 1
	Processes int

	// PollInterval is how long a runner sleeps after finding its queue
	// empty. Default: 1 second
	PollInterval time.Duration

	// QuitOnEmpty stops each runner once its queue is drained instead of
	// polling forever. Used for batch runs.
	QuitOnEmpty bool

	// Watch wakes runners immediately when a task file appears in a
	// watched queue directory, instead of waiting for the next poll.
	// Only effective for stores backed by a local directory.
	Watch bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Processes:    1,
		PollInterval: time.Second,
	}
}

// Pool runs a set of module runners against a task store.
type Pool struct {
	store    store.Interface
	registry *processor.Registry
	cfg      Config

	modules []string
	procs   map[string]processor.Processor
	wake    map[string]chan struct{}

	mu        sync.Mutex
	started   bool
	processed int
	failed    int
}

// New creates a worker pool. All modules are resolved against the
// registry up front so a typo fails fast instead of idling forever.
func New(st store.Interface, registry *processor.Registry, cfg Config) (*Pool, error) {
	if st == nil {
		return nil, fmt.Errorf("worker: store is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("worker: registry is required")
	}
	if cfg.Processes <= 0 {
		cfg.Processes = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	modules := cfg.Modules
	if len(modules) == 0 {
		modules = registry.List()
	}
	if len(modules) == 0 {
		return nil, fmt.Errorf("worker: no modules to work on")
	}

	procs := make(map[string]processor.Processor, len(modules))
	wake := make(map[string]chan struct{}, len(modules))
	for _, module := range modules {
		proc, err := registry.Get(module)
		if err != nil {
			return nil, fmt.Errorf("worker: %w", err)
		}
		procs[module] = proc
		wake[module] = make(chan struct{}, 1)
	}

	return &Pool{
		store:    st,
		registry: registry,
		cfg:      cfg,
		modules:  modules,
		procs:    procs,
		wake:     wake,
	}, nil
}

// Run starts the runners and blocks until they all stop: on context
// cancellation, or with QuitOnEmpty once every queue is drained.
//
// Each module's processor is status-checked before any runner starts;
// a failing module aborts the whole pool.
func (p *Pool) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("worker: pool already started")
	}
	p.started = true
	p.mu.Unlock()

	for _, module := range p.modules {
		if err := p.procs[module].CheckStatus(ctx); err != nil {
			return fmt.Errorf("worker: module %s failed its status check: %w", module, err)
		}
	}

	logger.Info("Worker pool starting",
		"modules", p.modules,
		"processes", p.cfg.Processes,
		"poll_interval", p.cfg.PollInterval.String(),
		"quit_on_empty", p.cfg.QuitOnEmpty,
	)

	// The watcher must die with the runners, not with the parent context
	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if p.cfg.Watch {
		p.startWatcher(watchCtx)
	}

	var wg sync.WaitGroup
	for _, module := range p.modules {
		for i := 0; i < p.cfg.Processes; i++ {
			wg.Add(1)
			go func(module string) {
				defer wg.Done()
				p.runner(ctx, module)
			}(module)
		}
	}
	wg.Wait()

	processed, failed := p.Stats()
	logger.Info("Worker pool stopped", "processed", processed, "failed", failed)
	return nil
}

// Stats returns how many tasks the pool completed and how many failed.
func (p *Pool) Stats() (processed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.failed
}

// runner is the claim-process-store loop of a single worker goroutine.
func (p *Pool) runner(ctx context.Context, module string) {
	workerID := uuid.NewString()
	proc := p.procs[module]
	log := logger.With("module", module, "worker", workerID)

	log.Debug("Worker started")
	defer log.Debug("Worker stopped")

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return
		}

		if p.processOne(ctx, module, proc, log) {
			// Queue may hold more; claim again right away
			continue
		}
		if p.cfg.QuitOnEmpty {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake[module]:
		}
	}
}

// processOne claims and handles a single task. It reports whether a task
// was claimed, so the caller knows whether to poll again immediately.
func (p *Pool) processOne(ctx context.Context, module string, proc processor.Processor, log *slog.Logger) bool {
	t, err := p.store.Claim(ctx, module)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("Failed to claim task", "error", err)
		}
		return false
	}
	if t == nil {
		return false
	}

	log.Debug("Task claimed", "id", t.ID, "size", len(t.Doc))

	spanCtx, span := telemetry.StartProcessSpan(ctx, module, t.ID, telemetry.DocBytes(len(t.Doc)))
	result, err := p.runTask(spanCtx, proc, t)
	if err != nil {
		telemetry.RecordError(spanCtx, err)
		span.End()
		p.storeFailure(ctx, t, err, log)
		return true
	}
	telemetry.SetAttributes(spanCtx, telemetry.ResultBytes(len(result)))
	span.End()

	if err := p.store.StoreResult(ctx, t.Module, t.ID, result); err != nil {
		// The result is lost; record the store failure on the task so it
		// surfaces instead of staying STARTED forever.
		log.Error("Failed to store result", "id", t.ID, "error", err)
		p.storeFailure(ctx, t, err, log)
		return true
	}

	p.mu.Lock()
	p.processed++
	p.mu.Unlock()
	log.Info("Task completed", "id", t.ID)
	return true
}

// runTask runs the processor with panic recovery. A panicking module
// fails its task instead of killing the whole pool.
func (p *Pool) runTask(ctx context.Context, proc processor.Processor, t *store.Task) (result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return proc.Process(ctx, t.ID, t.Doc)
}

// storeFailure marks a task as failed with the error message as payload.
func (p *Pool) storeFailure(ctx context.Context, t *store.Task, taskErr error, log *slog.Logger) {
	p.mu.Lock()
	p.failed++
	p.mu.Unlock()

	log.Warn("Task failed", "id", t.ID, "error", taskErr)
	message := taskErr.Error()
	if message == "" {
		message = "unknown error"
	}
	if err := p.store.StoreError(ctx, t.Module, t.ID, []byte(message)); err != nil {
		// Nothing more to do; the task stays STARTED until someone
		// re-queues it with reset_pending.
		log.Error("Failed to store task error", "id", t.ID, "error", err)
	}
}
