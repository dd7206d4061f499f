// Package task provides the shared domain types for nlpipe tasks.
//
// A task is a document identified by its content fingerprint, moving through
// a fixed lifecycle: PENDING (waiting in the queue), STARTED (claimed by a
// worker), and finally DONE or ERROR. Each lifecycle state corresponds to
// exactly one bucket directory in the on-disk store, so the state of a task
// is simply the bucket its file currently lives in. UNKNOWN means the task
// exists in no bucket at all.
package task

import (
	"fmt"
	"net/http"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusUnknown indicates the task exists in no bucket.
	StatusUnknown Status = "UNKNOWN"

	// StatusPending indicates the task is waiting in the queue.
	StatusPending Status = "PENDING"

	// StatusStarted indicates a worker has claimed the task.
	StatusStarted Status = "STARTED"

	// StatusDone indicates the task finished and a result is stored.
	StatusDone Status = "DONE"

	// StatusError indicates processing failed and an error message is stored.
	StatusError Status = "ERROR"
)

// Bucket directory names inside a module directory. The names are part of
// the shared on-disk layout and must not change.
const (
	BucketQueue      = "queue"
	BucketInProgress = "inprogress"
	BucketResults    = "results"
	BucketErrors     = "errors"
)

// statusBuckets maps each stored status to its bucket, in probe order.
// Status checks walk this list and the first hit wins, so a task that
// somehow exists in two buckets reports the earlier one.
var statusBuckets = []struct {
	status Status
	bucket string
}{
	{StatusPending, BucketQueue},
	{StatusStarted, BucketInProgress},
	{StatusDone, BucketResults},
	{StatusError, BucketErrors},
}

// Statuses returns the four stored statuses in probe order.
func Statuses() []Status {
	out := make([]Status, 0, len(statusBuckets))
	for _, sb := range statusBuckets {
		out = append(out, sb.status)
	}
	return out
}

// Buckets returns the four bucket names in probe order.
func Buckets() []string {
	out := make([]string, 0, len(statusBuckets))
	for _, sb := range statusBuckets {
		out = append(out, sb.bucket)
	}
	return out
}

// Bucket returns the bucket directory for the status, or "" for UNKNOWN.
func (s Status) Bucket() string {
	for _, sb := range statusBuckets {
		if sb.status == s {
			return sb.bucket
		}
	}
	return ""
}

// StatusForBucket returns the status stored in the given bucket,
// or UNKNOWN for an unrecognized bucket name.
func StatusForBucket(bucket string) Status {
	for _, sb := range statusBuckets {
		if sb.bucket == bucket {
			return sb.status
		}
	}
	return StatusUnknown
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusUnknown, StatusPending, StatusStarted, StatusDone, StatusError:
		return Status(s), nil
	}
	return StatusUnknown, fmt.Errorf("invalid task status %q", s)
}

// IsValid reports whether s is one of the five known statuses.
func (s Status) IsValid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Terminal reports whether the status is an end state (DONE or ERROR).
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// HTTPCode returns the status code the REST facade answers for a task
// in this state:
//
//	UNKNOWN → 404, PENDING/STARTED → 202, DONE → 200, ERROR → 500
func (s Status) HTTPCode() int {
	switch s {
	case StatusPending, StatusStarted:
		return http.StatusAccepted
	case StatusDone:
		return http.StatusOK
	case StatusError:
		return http.StatusInternalServerError
	default:
		return http.StatusNotFound
	}
}

// Statistics maps each stored status to the number of tasks in that state.
type Statistics map[Status]int

// Total returns the number of tasks across all states.
func (st Statistics) Total() int {
	n := 0
	for _, c := range st {
		n += c
	}
	return n
}
