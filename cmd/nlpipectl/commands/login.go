package commands

import (
	"fmt"

	"github.com/nlpipe/nlpipe/cmd/nlpipectl/cmdutil"
	"github.com/nlpipe/nlpipe/internal/cli/credentials"
	"github.com/nlpipe/nlpipe/internal/cli/prompt"
	"github.com/nlpipe/nlpipe/pkg/apiclient"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login <server-url>",
	Short: "Save an authentication token for a server",
	Long: `Verify a token against a server and store it for later use.

The token comes from --token when given, otherwise you are prompted for
it. Get one from the server operator, or run 'nlpipe token' on the
server host.

Examples:
  # Prompted for the token
  nlpipectl login http://localhost:5001

  # Token on the command line
  nlpipectl login http://nlpipe.example.com -t eyJh...`,
	Args: cobra.ExactArgs(1),
	RunE: runLogin,
}

func runLogin(cmd *cobra.Command, args []string) error {
	store, err := credentials.NewStore()
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	serverURL := normalizeServerArg(args[0])

	token := cmdutil.Flags.Token
	if token == "" {
		token, err = prompt.Token("Token")
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
	}

	// Verify before saving; a server with authentication disabled
	// accepts any token, which is fine.
	fmt.Printf("Checking token against %s...\n", serverURL)
	client := apiclient.New(serverURL, apiclient.WithToken(token))
	if err := client.CheckToken(cmd.Context()); err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}

	if err := store.SetToken(serverURL, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	fmt.Printf("Logged in to %s\n", serverURL)
	fmt.Printf("Credentials saved to: %s\n", store.ConfigPath())
	return nil
}
