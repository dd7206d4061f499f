// Package commands implements the CLI commands for the nlpipe server.
package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd runs the server. There is no separate "start" subcommand: the
// base invocation serves, matching how deployments have always launched
// the daemon.
var rootCmd = &cobra.Command{
	Use:   "nlpipe [flags] [root-dir]",
	Short: "NLPipe task server",
	Long: `nlpipe serves the NLPipe task queue and result cache over REST.

The positional argument is the storage root. When omitted, the server
falls back to $NLPIPE_DIR, and failing that to a fresh temporary
directory (useful for smoke tests, useless for keeping results).

Examples:
  # Serve an existing store
  nlpipe /srv/nlpipe

  # Serve and run an embedded worker pool for all registered modules
  nlpipe --workers /srv/nlpipe

  # Serve with workers for specific modules only
  nlpipe --workers=upper,tokenize /srv/nlpipe

  # Print an authentication token and exit
  nlpipe --print-token

  # Environment variable overrides (NLPIPE_<SECTION>_<KEY>)
  NLPIPE_LOGGING_LEVEL=DEBUG nlpipe /srv/nlpipe`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
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
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/nlpipe/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose (debug) output")

	f := rootCmd.Flags()
	f.IntP("port", "p", 5001, "Port number to listen on")
	f.StringP("host", "H", "localhost", "Host address to listen on")
	f.StringSliceP("workers", "w", nil, "Run an embedded worker pool ('all' or a comma-separated module list)")
	f.Int("processes", 1, "Number of worker processes per module")
	f.BoolP("disable-authentication", "A", false, "Disable authentication. Only use on firewalled servers")
	f.BoolP("print-token", "T", false, "Print authentication token and exit")

	// A bare --workers starts workers for every registered module, the
	// same as the explicit --workers=all.
	f.Lookup("workers").NoOptDefVal = "all"

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
