package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nlpipe/nlpipe/cmd/nlpipectl/cmdutil"
	"github.com/nlpipe/nlpipe/pkg/store"
	storefs "github.com/nlpipe/nlpipe/pkg/store/fs"
	"github.com/nlpipe/nlpipe/pkg/task"
	"github.com/spf13/cobra"
)

func newTestStore(t *testing.T) *storefs.Store {
	t.Helper()
	st, err := storefs.New(storefs.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newActionCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().String("format", "", "")
	cmd.Flags().Duration("timeout", 0, "")

	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return cmd, &buf
}

func setOutputFormat(t *testing.T, format string) {
	t.Helper()
	prev := cmdutil.Flags.Output
	cmdutil.Flags.Output = format
	t.Cleanup(func() { cmdutil.Flags.Output = prev })
}

// completeTask pushes a document through the queue to DONE.
func completeTask(t *testing.T, st *storefs.Store, module string, doc, result []byte) string {
	t.Helper()
	ctx := t.Context()
	id, err := st.Enqueue(ctx, module, doc, store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	claimed, err := st.Claim(ctx, module)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if claimed == nil || claimed.ID != id {
		t.Fatalf("claimed wrong task: %+v", claimed)
	}
	if err := st.StoreResult(ctx, module, id, result); err != nil {
		t.Fatalf("StoreResult failed: %v", err)
	}
	return id
}

func exitCode(err error) int {
	var exitErr *cmdutil.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}

func TestRunStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	cmd, buf := newActionCommand(t)

	// Unknown document: UNKNOWN printed, not-ready exit code.
	err := runStatus(ctx, cmd, st, "upper", []string{"never seen this"})
	if got := buf.String(); got != "UNKNOWN\n" {
		t.Errorf("output = %q, want UNKNOWN", got)
	}
	if exitCode(err) != cmdutil.ExitCodeNotReady {
		t.Errorf("expected not-ready exit code, got %v", err)
	}

	// Queued document: PENDING, still not ready. The doc itself works
	// as the argument because it fingerprints to the same id.
	if _, err := st.Enqueue(ctx, "upper", []byte("hello"), store.EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	buf.Reset()
	err = runStatus(ctx, cmd, st, "upper", []string{"hello"})
	if got := buf.String(); got != "PENDING\n" {
		t.Errorf("output = %q, want PENDING", got)
	}
	if exitCode(err) != cmdutil.ExitCodeNotReady {
		t.Errorf("expected not-ready exit code, got %v", err)
	}
}

func TestRunStatusTerminal(t *testing.T) {
	st := newTestStore(t)
	id := completeTask(t, st, "upper", []byte("hello"), []byte("HELLO"))
	cmd, buf := newActionCommand(t)

	if err := runStatus(t.Context(), cmd, st, "upper", []string{id}); err != nil {
		t.Fatalf("runStatus on a DONE task failed: %v", err)
	}
	if got := buf.String(); got != "DONE\n" {
		t.Errorf("output = %q, want DONE", got)
	}
}

func TestRunResult(t *testing.T) {
	st := newTestStore(t)
	id := completeTask(t, st, "upper", []byte("hello"), []byte("HELLO"))
	cmd, buf := newActionCommand(t)

	if err := runResult(t.Context(), cmd, st, "upper", []string{id}); err != nil {
		t.Fatalf("runResult failed: %v", err)
	}
	if got := buf.String(); got != "HELLO\n" {
		t.Errorf("output = %q, want HELLO", got)
	}
}

func TestRunResultNotReady(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	id, err := st.Enqueue(ctx, "upper", []byte("queued"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	cmd, _ := newActionCommand(t)

	err = runResult(ctx, cmd, st, "upper", []string{id})
	if exitCode(err) != cmdutil.ExitCodeNotReady {
		t.Errorf("expected not-ready exit code, got %v", err)
	}
}

func TestRunResultProcessingError(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	id, err := st.Enqueue(ctx, "upper", []byte("doomed"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := st.Claim(ctx, "upper"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := st.StoreError(ctx, "upper", id, []byte("kaboom")); err != nil {
		t.Fatalf("StoreError failed: %v", err)
	}
	cmd, _ := newActionCommand(t)

	err = runResult(ctx, cmd, st, "upper", []string{id})
	var procErr *task.ProcessingError
	if !errors.As(err, &procErr) {
		t.Fatalf("expected a processing error, got %v", err)
	}
	if procErr.Message != "kaboom" {
		t.Errorf("Message = %q, want kaboom", procErr.Message)
	}
}

func TestRunProcess(t *testing.T) {
	st := newTestStore(t)
	cmd, buf := newActionCommand(t)

	if err := runProcess(t.Context(), cmd, st, "upper", []string{"hello"}); err != nil {
		t.Fatalf("runProcess failed: %v", err)
	}
	if got := buf.String(); got != "0x5d41402abc4b2a76b9719d911017c592\n" {
		t.Errorf("printed id = %q", got)
	}

	status, err := st.Status(t.Context(), "upper", "0x5d41402abc4b2a76b9719d911017c592")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != task.StatusPending {
		t.Errorf("status = %v, want PENDING", status)
	}
}

func TestRunProcessExplicitID(t *testing.T) {
	st := newTestStore(t)
	cmd, buf := newActionCommand(t)
	explicit := "0x00000000000000000000000000000042"

	if err := runProcess(t.Context(), cmd, st, "upper", []string{"hello", explicit}); err != nil {
		t.Fatalf("runProcess failed: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != explicit {
		t.Errorf("printed id = %q, want %q", got, explicit)
	}
}

func TestRunProcessInlineCachedResult(t *testing.T) {
	st := newTestStore(t)
	completeTask(t, st, "upper", []byte("hello"), []byte("HELLO"))
	cmd, buf := newActionCommand(t)

	// Same document again: the cached result comes back without any
	// worker running.
	if err := runProcessInline(t.Context(), cmd, st, "upper", []string{"hello"}); err != nil {
		t.Fatalf("runProcessInline failed: %v", err)
	}
	if got := buf.String(); got != "HELLO\n" {
		t.Errorf("output = %q, want HELLO", got)
	}
}

func TestRunProcessInlineTimesOut(t *testing.T) {
	st := newTestStore(t)
	cmd, _ := newActionCommand(t)
	if err := cmd.Flags().Set("timeout", "250ms"); err != nil {
		t.Fatal(err)
	}

	err := runProcessInline(t.Context(), cmd, st, "upper", []string{"nobody will process this"})
	if exitCode(err) != cmdutil.ExitCodeNotReady {
		t.Errorf("expected not-ready exit code on timeout, got %v", err)
	}
}

func TestRunBulkStatusJSON(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	setOutputFormat(t, "json")

	done := completeTask(t, st, "upper", []byte("hello"), []byte("HELLO"))
	pending, err := st.Enqueue(ctx, "upper", []byte("waiting"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	cmd, buf := newActionCommand(t)

	if err := runBulkStatus(ctx, cmd, st, "upper", []string{done, pending}); err != nil {
		t.Fatalf("runBulkStatus failed: %v", err)
	}

	var statuses map[string]string
	if err := json.Unmarshal(buf.Bytes(), &statuses); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if statuses[done] != "DONE" || statuses[pending] != "PENDING" {
		t.Errorf("unexpected statuses: %v", statuses)
	}
}

func TestRunBulkStatusTable(t *testing.T) {
	st := newTestStore(t)
	done := completeTask(t, st, "upper", []byte("hello"), []byte("HELLO"))
	cmd, buf := newActionCommand(t)

	if err := runBulkStatus(t.Context(), cmd, st, "upper", []string{done}); err != nil {
		t.Fatalf("runBulkStatus failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, done) || !strings.Contains(out, "DONE") {
		t.Errorf("table output missing id or status:\n%s", out)
	}
}

func TestRunBulkResult(t *testing.T) {
	st := newTestStore(t)
	setOutputFormat(t, "json")
	id := completeTask(t, st, "upper", []byte("hello"), []byte("HELLO"))
	cmd, buf := newActionCommand(t)

	if err := runBulkResult(t.Context(), cmd, st, "upper", []string{id}); err != nil {
		t.Fatalf("runBulkResult failed: %v", err)
	}

	var results map[string]string
	if err := json.Unmarshal(buf.Bytes(), &results); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if results[id] != "HELLO" {
		t.Errorf("results = %v", results)
	}
}

func TestRunStoreResultAndError(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	cmd, _ := newActionCommand(t)

	id, err := st.Enqueue(ctx, "upper", []byte("claim me"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := st.Claim(ctx, "upper"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := runStoreResult(ctx, cmd, st, "upper", []string{id, "CLAIM ME"}); err != nil {
		t.Fatalf("runStoreResult failed: %v", err)
	}
	status, err := st.Status(ctx, "upper", id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != task.StatusDone {
		t.Errorf("status = %v, want DONE", status)
	}

	id2, err := st.Enqueue(ctx, "upper", []byte("doomed"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := st.Claim(ctx, "upper"); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := runStoreError(ctx, cmd, st, "upper", []string{id2, "bad input"}); err != nil {
		t.Fatalf("runStoreError failed: %v", err)
	}
	status, err = st.Status(ctx, "upper", id2)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != task.StatusError {
		t.Errorf("status = %v, want ERROR", status)
	}
}

func TestRunStoreResultRejectsUnclaimed(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	cmd, _ := newActionCommand(t)

	id, err := st.Enqueue(ctx, "upper", []byte("still queued"), store.EnqueueOptions{})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	err = runStoreResult(ctx, cmd, st, "upper", []string{id, "result"})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
}

func TestRunStatistics(t *testing.T) {
	st := newTestStore(t)
	ctx := t.Context()
	setOutputFormat(t, "json")

	completeTask(t, st, "upper", []byte("hello"), []byte("HELLO"))
	if _, err := st.Enqueue(ctx, "upper", []byte("waiting"), store.EnqueueOptions{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	cmd, buf := newActionCommand(t)

	if err := runStatistics(ctx, cmd, st, "upper", nil); err != nil {
		t.Fatalf("runStatistics failed: %v", err)
	}

	var stats map[string]int
	if err := json.Unmarshal(buf.Bytes(), &stats); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if stats["DONE"] != 1 || stats["PENDING"] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestRunCheckLocal(t *testing.T) {
	st := newTestStore(t)
	cmd, buf := newActionCommand(t)

	if err := runCheck(t.Context(), cmd, st, st.Dir(), "upper"); err != nil {
		t.Fatalf("runCheck failed: %v", err)
	}
	if got := buf.String(); got != "OK\n" {
		t.Errorf("output = %q, want OK", got)
	}
}

func TestRunActionUnknown(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	err := runAction(cmd, []string{t.TempDir(), "upper", "explode"})
	if err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Errorf("expected an unknown action error, got %v", err)
	}
}

func TestSortedKeys(t *testing.T) {
	keys := sortedKeys(map[string]int{"b": 1, "a": 2, "c": 3})
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("keys = %v", keys)
	}
}
