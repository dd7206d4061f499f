package commands

import (
	"fmt"

	"github.com/nlpipe/nlpipe/cmd/nlpipectl/cmdutil"
	"github.com/nlpipe/nlpipe/internal/cli/credentials"
	"github.com/nlpipe/nlpipe/internal/cli/taskstore"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Token helpers",
	Long: `Inspect and manage stored authentication tokens.

Examples:
  # Print the token that would be used for a server
  nlpipectl token show http://localhost:5001

  # Save a token without verifying it
  nlpipectl token set http://localhost:5001 eyJh...

  # List servers with saved tokens
  nlpipectl token list`,
}

var tokenShowCmd = &cobra.Command{
	Use:   "show <server-url>",
	Short: "Print the token that would be used for a server",
	Long: `Print the token nlpipectl would send to the given server, after
walking the resolution chain: --token, $NLPIPE_TOKEN, ./.nlpipe_token,
then the saved credentials.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL := normalizeServerArg(args[0])
		token := credentials.ResolveToken(cmdutil.Flags.Token, serverURL)
		if token == "" {
			return fmt.Errorf("no token found for %s - run 'nlpipectl login %s' first", serverURL, serverURL)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <server-url> <token>",
	Short: "Save a token without verifying it",
	Long: `Store a token for a server without contacting it. Useful when the
server is not reachable from this machine yet.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize credential store: %w", err)
		}
		serverURL := normalizeServerArg(args[0])
		if err := store.SetToken(serverURL, args[1]); err != nil {
			return fmt.Errorf("failed to save token: %w", err)
		}
		fmt.Printf("Token saved for %s\n", serverURL)
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List servers with saved tokens",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := credentials.NewStore()
		if err != nil {
			return fmt.Errorf("failed to initialize credential store: %w", err)
		}
		servers := store.Servers()
		if len(servers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved tokens.")
			return nil
		}
		for _, server := range servers {
			fmt.Fprintln(cmd.OutOrStdout(), server)
		}
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(tokenShowCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenListCmd)
}

// normalizeServerArg defaults a bare host name to http, the same way
// login does, so token commands address the same saved entry.
func normalizeServerArg(serverURL string) string {
	if !taskstore.IsRemote(serverURL) {
		return "http://" + serverURL
	}
	return serverURL
}
