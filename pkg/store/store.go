// Package store defines the task store interface shared by the filesystem
// store and the HTTP client.
//
// A task store keeps every task in exactly one of four buckets (queue,
// inprogress, results, errors) keyed by the task's content fingerprint.
// Workers and clients coordinate purely through bucket membership: there is
// no separate index, broker, or database, which is what lets several
// machines share one store over a common filesystem.
package store

import (
	"context"

	"github.com/nlpipe/nlpipe/pkg/task"
)

// Task is a claimed unit of work: the document to process and where it
// came from.
type Task struct {
	// Module is the processing module the task was enqueued for.
	Module string

	// ID is the content fingerprint of the document.
	ID string

	// Doc is the document payload.
	Doc []byte
}

// Document pairs an optional explicit id with a document body for bulk
// enqueueing. An empty ID means the id is computed from the body.
type Document struct {
	ID   string
	Body []byte
}

// EnqueueOptions controls how Enqueue treats a task that already exists.
type EnqueueOptions struct {
	// ID overrides the computed content fingerprint. Callers that already
	// track their own document ids use this to keep them stable.
	ID string

	// ResetError re-queues a task currently in the ERROR state.
	ResetError bool

	// ResetPending re-queues a task currently in the STARTED state
	// (e.g. one lost by a crashed worker).
	ResetPending bool
}

// Converter converts a stored result into another output format.
// The processor registry satisfies this interface.
type Converter interface {
	Convert(module, id string, result []byte, format string) ([]byte, error)
}

// Interface is the task store contract.
//
// Status probes never error on unknown tasks or modules; they answer
// task.StatusUnknown. Claim answers (nil, nil) on an empty queue so callers
// can poll without error branching.
type Interface interface {
	// Enqueue files a document for processing and returns its id.
	// Enqueueing a document that is already known is a no-op unless one of
	// the reset options applies to its current state.
	Enqueue(ctx context.Context, module string, doc []byte, opts EnqueueOptions) (string, error)

	// Status reports the lifecycle state of a task.
	Status(ctx context.Context, module, id string) (task.Status, error)

	// Claim atomically moves the oldest queued task to inprogress and
	// returns it. An empty queue yields (nil, nil).
	Claim(ctx context.Context, module string) (*Task, error)

	// Result returns the stored result of a DONE task, converted to the
	// requested format when one is given ("" and "raw" mean no conversion).
	// An ERROR task yields a *task.ProcessingError; any other state yields
	// ErrNotReady.
	Result(ctx context.Context, module, id, format string) ([]byte, error)

	// StoreResult files a result for a claimed task, marking it DONE.
	// Also accepts tasks already in a terminal state, replacing the
	// earlier outcome. Any other state yields ErrInvalidState.
	StoreResult(ctx context.Context, module, id string, result []byte) error

	// StoreError files an error message for a claimed task, marking it
	// ERROR. State rules match StoreResult.
	StoreError(ctx context.Context, module, id string, message []byte) error

	// BulkStatus reports the status of each id.
	BulkStatus(ctx context.Context, module string, ids []string) (map[string]task.Status, error)

	// BulkResult fetches results for the given ids. Ids that are not DONE
	// are omitted from the map.
	BulkResult(ctx context.Context, module string, ids []string, format string) (map[string][]byte, error)

	// BulkEnqueue files several documents and returns their ids in input
	// order.
	BulkEnqueue(ctx context.Context, module string, docs []Document, opts EnqueueOptions) ([]string, error)

	// Statistics counts the tasks of a module per lifecycle state.
	Statistics(ctx context.Context, module string) (task.Statistics, error)

	// Modules lists the modules that have tasks in the store.
	Modules(ctx context.Context) ([]string, error)
}
