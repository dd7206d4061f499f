package commands

import (
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an authentication token",
	Long: `Mint and print an authentication token for this server.

The token is signed with the configured secret (or, when no secret is
configured, with a stable secret derived from the machine identity).
Hand it to workers and clients via --token, $NLPIPE_TOKEN, or a
./.nlpipe_token file.

Examples:
  # Print a token
  nlpipe token

  # Save it for clients on this machine
  nlpipe token | tail -1 > ~/.nlpipe_token`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runPrintToken(cfg, cmd.OutOrStdout())
	},
}
