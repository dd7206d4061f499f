// Package commands implements the CLI commands for nlpipectl.
package commands

import (
	"fmt"

	"github.com/nlpipe/nlpipe/cmd/nlpipectl/cmdutil"
	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/spf13/cobra"
)

// rootCmd dispatches task actions. Unlike a conventional cobra layout,
// the action name comes third: the store location and module are
// positional so that scripted pipelines read naturally and the same
// invocation works against a directory or a server URL.
var rootCmd = &cobra.Command{
	Use:   "nlpipectl <server-or-dir> <module> <action> [args]",
	Short: "NLPipe control - task queue client",
	Long: `nlpipectl talks to an NLPipe task store, local or remote.

The first argument selects the store: a http(s):// URL connects through
the REST API, anything else is a local store directory. The second names
the processing module, the third the action.

Actions:
  status <id|doc>                     Print the task status
  result <id> [--format F]            Print the stored result
  check                               Check the store (and token) works
  process <doc|-> [id]                Enqueue a document, print its id
  process_inline <doc|-> [id]         Enqueue, wait, print the result
  bulk_status <id>...                 Status of several tasks
  bulk_result <id>...                 Results of several tasks
  store_result <id> <result|->        Store a result for a claimed task
  store_error <id> <message|->        Store an error for a claimed task
  statistics                          Per-state task counts

"-" reads the document from stdin.

Exit codes: 0 on success, 1 on error, 4 when the task exists but is not
in a terminal state yet (so scripts can poll).

Examples:
  # Process a document and wait for the result
  nlpipectl http://localhost:5001 upper process_inline "hello world"

  # Enqueue from a file, poll later
  nlpipectl /srv/nlpipe upper process - < document.txt
  nlpipectl /srv/nlpipe upper status 0x5d41402abc4b2a76b9719d911017c592

  # Bulk status as JSON
  nlpipectl /srv/nlpipe upper bulk_status 0x5d... 0x7d... -o json`,
	Args:          cobra.MinimumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")

		if cmdutil.Flags.Verbose {
			logger.SetLevel("DEBUG")
		}
	},
	RunE: runAction,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringP("token", "t", "", "Auth token (default reads ./.nlpipe_token or $NLPIPE_TOKEN)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format for bulk actions (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose (debug) output")

	f := rootCmd.Flags()
	f.String("format", "", "Optional result format to retrieve (e.g. csv, json)")
	f.Duration("timeout", 0, "Give up on process_inline after this long (0 waits forever)")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func runAction(cmd *cobra.Command, args []string) error {
	serverOrDir, module, action := args[0], args[1], args[2]
	actionArgs := args[3:]

	st, cleanup, err := cmdutil.Connect(serverOrDir)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	switch action {
	case "status":
		return runStatus(ctx, cmd, st, module, actionArgs)
	case "result":
		return runResult(ctx, cmd, st, module, actionArgs)
	case "check":
		return runCheck(ctx, cmd, st, serverOrDir, module)
	case "process":
		return runProcess(ctx, cmd, st, module, actionArgs)
	case "process_inline":
		return runProcessInline(ctx, cmd, st, module, actionArgs)
	case "bulk_status":
		return runBulkStatus(ctx, cmd, st, module, actionArgs)
	case "bulk_result":
		return runBulkResult(ctx, cmd, st, module, actionArgs)
	case "store_result":
		return runStoreResult(ctx, cmd, st, module, actionArgs)
	case "store_error":
		return runStoreError(ctx, cmd, st, module, actionArgs)
	case "statistics":
		return runStatistics(ctx, cmd, st, module, actionArgs)
	default:
		return fmt.Errorf("unknown action %q (see 'nlpipectl --help' for the action list)", action)
	}
}
