// Package fs provides the filesystem-backed task store.
//
// Tasks live under <dir>/<module>/<bucket>/<id>, one file per task, where
// the bucket encodes the lifecycle state. All coordination happens through
// the filesystem itself: claiming a task is an atomic rename from queue/ to
// inprogress/, so on a POSIX filesystem two workers can never claim the
// same task. The layout is shared with other implementations; nothing else
// (index files, locks, databases) may be added to it.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/fingerprint"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
	"github.com/nlpipe/nlpipe/pkg/task"
)

// Store is the filesystem implementation of store.Interface.
type Store struct {
	mu     sync.RWMutex
	dir    string
	closed bool

	dirMode   os.FileMode
	fileMode  os.FileMode
	converter store.Converter
}

// Config holds configuration for the filesystem task store.
type Config struct {
	// Dir is the root directory of the task store.
	Dir string

	// CreateDir creates the root directory if it doesn't exist.
	// Default: true (via DefaultConfig).
	CreateDir bool

	// DirMode is the permission mode for created directories.
	// Default: 0755
	DirMode os.FileMode

	// FileMode is the permission mode for created task files.
	// Default: 0644
	FileMode os.FileMode

	// Converter renders results in alternative formats on fetch.
	// Usually the processor registry. May be nil, in which case only
	// raw results can be fetched.
	Converter store.Converter
}

// DefaultConfig returns the default configuration for the given root.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:       dir,
		CreateDir: true,
		DirMode:   0755,
		FileMode:  0644,
	}
}

// New creates a filesystem task store with the given configuration.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("task store dir is required")
	}
	if cfg.DirMode == 0 {
		cfg.DirMode = 0755
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0644
	}

	if cfg.CreateDir {
		if err := os.MkdirAll(cfg.Dir, cfg.DirMode); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("task store path %q is not a directory", cfg.Dir)
	}

	return &Store{
		dir:       cfg.Dir,
		dirMode:   cfg.DirMode,
		fileMode:  cfg.FileMode,
		converter: cfg.Converter,
	}, nil
}

// NewWithDir creates a filesystem task store with default configuration.
func NewWithDir(dir string) (*Store, error) {
	return New(DefaultConfig(dir))
}

// Dir returns the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

// validName rejects path-escaping module names and task ids. Both end up
// as path components under the store root.
func validName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("invalid name %q", name)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

func (s *Store) bucketPath(module, bucket string) string {
	return filepath.Join(s.dir, module, bucket)
}

func (s *Store) taskPath(module, bucket, id string) string {
	return filepath.Join(s.dir, module, bucket, id)
}

// writeTask writes a task file atomically: write to a sibling .tmp file,
// then rename into place. Listings and claims ignore .tmp entries, so a
// half-written task is never visible.
func (s *Store) writeTask(module, bucket, id string, data []byte) error {
	dir := s.bucketPath(module, bucket)
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return err
	}

	path := filepath.Join(dir, id)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, s.fileMode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// probe returns the current status of a task by checking the buckets in
// probe order.
func (s *Store) probe(module, id string) task.Status {
	for _, bucket := range task.Buckets() {
		if _, err := os.Stat(s.taskPath(module, bucket, id)); err == nil {
			return task.StatusForBucket(bucket)
		}
	}
	return task.StatusUnknown
}

func (s *Store) checkOpen() error {
	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}

// Enqueue files a document for processing.
//
// A task already known to the store is left alone, which is what makes the
// store a result cache: re-submitting a processed document costs one status
// probe. The reset options re-queue ERROR and STARTED tasks respectively;
// the stale file is removed before the fresh document is written so the
// task is never visible in two buckets.
func (s *Store) Enqueue(ctx context.Context, module string, doc []byte, opts store.EnqueueOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if err := validName(module); err != nil {
		return "", fmt.Errorf("module: %w", err)
	}

	id := opts.ID
	if id == "" {
		id = fingerprint.Fingerprint(doc)
	}
	if err := validName(id); err != nil {
		return "", fmt.Errorf("task id: %w", err)
	}

	status := s.probe(module, id)
	switch {
	case status == task.StatusUnknown:
		// New task.
	case status == task.StatusError && opts.ResetError:
		if err := os.Remove(s.taskPath(module, task.BucketErrors, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	case status == task.StatusStarted && opts.ResetPending:
		if err := os.Remove(s.taskPath(module, task.BucketInProgress, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	default:
		logger.Debug("Enqueue is a no-op", "module", module, "id", id, "status", status)
		return id, nil
	}

	if err := s.writeTask(module, task.BucketQueue, id, doc); err != nil {
		return "", err
	}
	logger.Debug("Task queued", "module", module, "id", id)
	return id, nil
}

// Status reports the lifecycle state of a task. Unknown modules and ids
// are not errors; they answer UNKNOWN.
func (s *Store) Status(ctx context.Context, module, id string) (task.Status, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return task.StatusUnknown, err
	}
	if err := validName(module); err != nil {
		return task.StatusUnknown, fmt.Errorf("module: %w", err)
	}
	if err := validName(id); err != nil {
		return task.StatusUnknown, fmt.Errorf("task id: %w", err)
	}

	return s.probe(module, id), nil
}

// queueEntry is a claim candidate.
type queueEntry struct {
	id    string
	mtime time.Time
}

// Claim moves the oldest queued task to inprogress and returns it.
//
// Candidates are ordered by modification time (enqueue time), so dispatch
// is approximately first-in-first-out. Losing a rename race to another
// claimant is normal operation: the next candidate is tried, and an empty
// queue answers (nil, nil).
func (s *Store) Claim(ctx context.Context, module string) (*store.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validName(module); err != nil {
		return nil, fmt.Errorf("module: %w", err)
	}

	queueDir := s.bucketPath(module, task.BucketQueue)
	entries, err := os.ReadDir(queueDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]queueEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Entry vanished between ReadDir and Stat: claimed elsewhere.
			continue
		}
		candidates = append(candidates, queueEntry{id: entry.Name(), mtime: info.ModTime()})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].mtime.Equal(candidates[j].mtime) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].mtime.Before(candidates[j].mtime)
	})

	inProgressDir := s.bucketPath(module, task.BucketInProgress)
	if err := os.MkdirAll(inProgressDir, s.dirMode); err != nil {
		return nil, err
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		src := filepath.Join(queueDir, candidate.id)
		dst := filepath.Join(inProgressDir, candidate.id)

		if err := os.Rename(src, dst); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Another claimant won the race; try the next one.
				continue
			}
			return nil, err
		}

		doc, err := os.ReadFile(dst)
		if err != nil {
			return nil, fmt.Errorf("reading claimed task %s/%s: %w", module, candidate.id, err)
		}

		logger.Debug("Task claimed", "module", module, "id", candidate.id)
		return &store.Task{Module: module, ID: candidate.id, Doc: doc}, nil
	}

	return nil, nil
}

// Result returns the outcome of a task.
//
// DONE tasks yield the stored result, converted when a format other than
// "" or "raw" is requested. ERROR tasks yield the stored message as a
// *task.ProcessingError. Anything else is ErrNotReady.
func (s *Store) Result(ctx context.Context, module, id, format string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validName(module); err != nil {
		return nil, fmt.Errorf("module: %w", err)
	}
	if err := validName(id); err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}

	switch status := s.probe(module, id); status {
	case task.StatusDone:
		data, err := os.ReadFile(s.taskPath(module, task.BucketResults, id))
		if err != nil {
			return nil, err
		}
		if format == "" || format == "raw" {
			return data, nil
		}
		if s.converter == nil {
			return nil, fmt.Errorf("%w: no converter configured for format %q", processor.ErrCannotConvert, format)
		}
		return s.converter.Convert(module, id, data, format)

	case task.StatusError:
		msg, err := os.ReadFile(s.taskPath(module, task.BucketErrors, id))
		if err != nil {
			return nil, err
		}
		return nil, &task.ProcessingError{Module: module, ID: id, Message: string(msg)}

	default:
		return nil, fmt.Errorf("%w: task %s/%s is %s", store.ErrNotReady, module, id, status)
	}
}

// StoreResult files a result for the task, marking it DONE.
func (s *Store) StoreResult(ctx context.Context, module, id string, result []byte) error {
	return s.finish(module, id, task.StatusDone, result)
}

// StoreError files an error message for the task, marking it ERROR.
func (s *Store) StoreError(ctx context.Context, module, id string, message []byte) error {
	return s.finish(module, id, task.StatusError, message)
}

// finish writes a terminal outcome for a claimed or already-finished task.
//
// The target file is written before the previous bucket's file is removed,
// so the task never vanishes from the store; the probe order decides which
// copy wins during the overlap.
func (s *Store) finish(module, id string, target task.Status, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validName(module); err != nil {
		return fmt.Errorf("module: %w", err)
	}
	if err := validName(id); err != nil {
		return fmt.Errorf("task id: %w", err)
	}

	current := s.probe(module, id)
	switch current {
	case task.StatusStarted, task.StatusDone, task.StatusError:
		// Storing an outcome for a claimed task, or replacing an earlier
		// one. Anything else was never claimed.
	default:
		return fmt.Errorf("%w: cannot store %s for task %s/%s in state %s",
			store.ErrInvalidState, target, module, id, current)
	}

	if err := s.writeTask(module, target.Bucket(), id, payload); err != nil {
		return err
	}

	if current != target {
		if err := os.Remove(s.taskPath(module, current.Bucket(), id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	logger.Debug("Task finished", "module", module, "id", id, "status", target)
	return nil
}

// BulkStatus reports the status of each id.
func (s *Store) BulkStatus(ctx context.Context, module string, ids []string) (map[string]task.Status, error) {
	out := make(map[string]task.Status, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		status, err := s.Status(ctx, module, id)
		if err != nil {
			return nil, err
		}
		out[id] = status
	}
	return out, nil
}

// BulkResult fetches results for the given ids. Ids without a stored
// result (unknown, queued, in progress, or failed) are omitted.
func (s *Store) BulkResult(ctx context.Context, module string, ids []string, format string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := s.Result(ctx, module, id, format)
		if err != nil {
			var procErr *task.ProcessingError
			if errors.Is(err, store.ErrNotReady) || errors.As(err, &procErr) {
				logger.Debug("Skipping task without result", "module", module, "id", id)
				continue
			}
			return nil, err
		}
		out[id] = result
	}
	return out, nil
}

// BulkEnqueue files several documents and returns their ids in input order.
func (s *Store) BulkEnqueue(ctx context.Context, module string, docs []store.Document, opts store.EnqueueOptions) ([]string, error) {
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		perDoc := opts
		perDoc.ID = doc.ID
		id, err := s.Enqueue(ctx, module, doc.Body, perDoc)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Statistics counts the tasks of a module per lifecycle state.
func (s *Store) Statistics(ctx context.Context, module string) (task.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validName(module); err != nil {
		return nil, fmt.Errorf("module: %w", err)
	}

	stats := make(task.Statistics, len(task.Buckets()))
	for _, bucket := range task.Buckets() {
		entries, err := os.ReadDir(s.bucketPath(module, bucket))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				stats[task.StatusForBucket(bucket)] = 0
				continue
			}
			return nil, err
		}
		count := 0
		for _, entry := range entries {
			if entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
				continue
			}
			count++
		}
		stats[task.StatusForBucket(bucket)] = count
	}
	return stats, nil
}

// Modules lists the modules that have tasks in the store, sorted.
func (s *Store) Modules(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	modules := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		modules = append(modules, entry.Name())
	}
	sort.Strings(modules)
	return modules, nil
}

// HealthCheck verifies the store root is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkOpen(); err != nil {
		return err
	}
	_, err := os.Stat(s.dir)
	return err
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ensure Store implements store.Interface.
var _ store.Interface = (*Store)(nil)
