package worker

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/task"
)

// startWatcher wires filesystem notifications to the runners' wake
// channels, so a freshly enqueued task is picked up without waiting for
// the next poll tick. Remote stores have no directory to watch; the pool
// then falls back to polling alone.
func (p *Pool) startWatcher(ctx context.Context) {
	dirStore, ok := p.store.(interface{ Dir() string })
	if !ok {
		logger.Debug("Queue watching unavailable for this store, polling instead")
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("Failed to start queue watcher, polling instead", "error", err)
		return
	}

	dir := dirStore.Dir()
	watched := 0
	for _, module := range p.modules {
		queueDir := filepath.Join(dir, module, task.BucketQueue)
		// The directory must exist before it can be watched
		if err := os.MkdirAll(queueDir, 0o755); err != nil {
			logger.Warn("Cannot prepare queue directory for watching", "module", module, "error", err)
			continue
		}
		if err := watcher.Add(queueDir); err != nil {
			logger.Warn("Cannot watch queue directory", "module", module, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		logger.Warn("No queue directories could be watched, polling instead")
		_ = watcher.Close()
		return
	}

	logger.Debug("Watching queue directories", "dir", dir, "modules", watched)

	go func() {
		defer func() { _ = watcher.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				// Enqueue creates the file; claims rename it away again.
				// Only arrivals matter.
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				p.wakeModule(moduleForQueueFile(event.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Queue watcher error", "error", err)
			}
		}
	}()
}

// moduleForQueueFile extracts the module name from a task file path of
// the form <dir>/<module>/queue/<id>.
func moduleForQueueFile(path string) string {
	return filepath.Base(filepath.Dir(filepath.Dir(path)))
}

// wakeModule nudges one idle runner of the module, if any is waiting.
func (p *Pool) wakeModule(module string) {
	ch, ok := p.wake[module]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
