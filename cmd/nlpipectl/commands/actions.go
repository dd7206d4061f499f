package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nlpipe/nlpipe/cmd/nlpipectl/cmdutil"
	"github.com/nlpipe/nlpipe/internal/cli/output"
	"github.com/nlpipe/nlpipe/pkg/apiclient"
	"github.com/nlpipe/nlpipe/pkg/fingerprint"
	"github.com/nlpipe/nlpipe/pkg/store"
	"github.com/nlpipe/nlpipe/pkg/task"
	"github.com/spf13/cobra"
)

// inlinePollInterval is how often process_inline re-checks the task.
const inlinePollInterval = 100 * time.Millisecond

func runStatus(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> status <id|doc>")
	}

	// The argument may be a task id or the document itself; a document
	// resolves to the id it would have been enqueued under.
	id := fingerprint.Fingerprint([]byte(args[0]))
	status, err := st.Status(ctx, module, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), status)

	if status != task.StatusDone && status != task.StatusError {
		return cmdutil.NotReady(nil)
	}
	return nil
}

func runResult(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> result <id> [--format F]")
	}
	format, _ := cmd.Flags().GetString("format")

	id := fingerprint.Fingerprint([]byte(args[0]))
	return printTaskResult(ctx, cmd, st, module, id, format)
}

// printTaskResult fetches and prints a result, mapping a task that is
// not finished yet to the not-ready exit code.
func printTaskResult(ctx context.Context, cmd *cobra.Command, st store.Interface, module, id, format string) error {
	result, err := st.Result(ctx, module, id, format)
	if err != nil {
		if errors.Is(err, store.ErrNotReady) {
			return cmdutil.NotReady(err)
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(result))
	return nil
}

func runCheck(ctx context.Context, cmd *cobra.Command, st store.Interface, serverOrDir, module string) error {
	// Remote stores verify the token; local stores verify the
	// directory is usable.
	if client, ok := st.(*apiclient.Client); ok {
		if err := client.CheckToken(ctx); err != nil {
			return err
		}
	} else if hc, ok := st.(interface{ HealthCheck(context.Context) error }); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return err
		}
	}

	// Either way the module itself must be reachable.
	if _, err := st.Statistics(ctx, module); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), "OK")
	return nil
}

func runProcess(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> process <doc|-> [id]")
	}
	doc, err := cmdutil.ReadArg(args[0])
	if err != nil {
		return err
	}

	opts := store.EnqueueOptions{}
	if len(args) == 2 {
		opts.ID = args[1]
	}

	id, err := st.Enqueue(ctx, module, doc, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runProcessInline(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> process_inline <doc|-> [id] [--format F] [--timeout D]")
	}
	format, _ := cmd.Flags().GetString("format")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	doc, err := cmdutil.ReadArg(args[0])
	if err != nil {
		return err
	}

	opts := store.EnqueueOptions{}
	if len(args) == 2 {
		opts.ID = args[1]
	}

	// Enqueueing a known document is a no-op, so a cached result is
	// returned without reprocessing.
	id, err := st.Enqueue(ctx, module, doc, opts)
	if err != nil {
		return err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		status, err := st.Status(ctx, module, id)
		if err != nil {
			if ctx.Err() != nil {
				return cmdutil.NotReady(fmt.Errorf("timed out waiting for %s/%s", module, id))
			}
			return err
		}
		if status == task.StatusDone || status == task.StatusError {
			return printTaskResult(ctx, cmd, st, module, id, format)
		}

		select {
		case <-ctx.Done():
			return cmdutil.NotReady(fmt.Errorf("timed out waiting for %s/%s (last status %s)", module, id, status))
		case <-time.After(inlinePollInterval):
		}
	}
}

func runBulkStatus(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> bulk_status <id>...")
	}

	statuses, err := st.BulkStatus(ctx, module, args)
	if err != nil {
		return err
	}

	td := output.NewTableData("ID", "STATUS")
	for _, id := range sortedKeys(statuses) {
		td.AddRow(id, string(statuses[id]))
	}
	return cmdutil.PrintResource(cmd.OutOrStdout(), statuses, td)
}

func runBulkResult(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> bulk_result <id>... [--format F]")
	}
	format, _ := cmd.Flags().GetString("format")

	results, err := st.BulkResult(ctx, module, args, format)
	if err != nil {
		return err
	}

	// Results print as text; raw bytes would render as base64 in JSON.
	text := make(map[string]string, len(results))
	for id, result := range results {
		text[id] = string(result)
	}

	td := output.NewTableData("ID", "RESULT")
	for _, id := range sortedKeys(text) {
		td.AddRow(id, text[id])
	}
	return cmdutil.PrintResource(cmd.OutOrStdout(), text, td)
}

func runStoreResult(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> store_result <id> <result|->")
	}
	result, err := cmdutil.ReadArg(args[1])
	if err != nil {
		return err
	}
	return st.StoreResult(ctx, module, args[0], result)
}

func runStoreError(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> store_error <id> <message|->")
	}
	message, err := cmdutil.ReadArg(args[1])
	if err != nil {
		return err
	}
	return st.StoreError(ctx, module, args[0], message)
}

func runStatistics(ctx context.Context, cmd *cobra.Command, st store.Interface, module string, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: nlpipectl <server-or-dir> <module> statistics")
	}

	stats, err := st.Statistics(ctx, module)
	if err != nil {
		return err
	}

	td := output.NewTableData("STATE", "COUNT")
	for _, status := range []task.Status{task.StatusPending, task.StatusStarted, task.StatusDone, task.StatusError} {
		td.AddRow(string(status), fmt.Sprintf("%d", stats[status]))
	}
	td.AddRow("TOTAL", fmt.Sprintf("%d", stats.Total()))
	return cmdutil.PrintResource(cmd.OutOrStdout(), stats, td)
}

// sortedKeys returns the keys of m in lexical order, so bulk output is
// stable run to run.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
