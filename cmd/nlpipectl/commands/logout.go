package commands

import (
	"fmt"

	"github.com/nlpipe/nlpipe/internal/cli/credentials"
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout <server-url>",
	Short: "Clear the stored token for a server",
	Long: `Remove the saved authentication token for a server.

Examples:
  # Forget the token for a server
  nlpipectl logout http://localhost:5001`,
	Args: cobra.ExactArgs(1),
	RunE: runLogout,
}

func runLogout(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	serverURL := normalizeServerArg(args[0])

	if err := store.DeleteToken(serverURL); err != nil {
		return err
	}

	fmt.Printf("Logged out from %s\n", serverURL)
	return nil
}
