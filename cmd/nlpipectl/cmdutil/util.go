// Package cmdutil provides shared utilities for nlpipectl commands.
package cmdutil

import (
	"fmt"
	"io"
	"os"

	"github.com/nlpipe/nlpipe/internal/cli/credentials"
	"github.com/nlpipe/nlpipe/internal/cli/output"
	"github.com/nlpipe/nlpipe/internal/cli/taskstore"
	"github.com/nlpipe/nlpipe/pkg/store"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	Token   string
	Output  string
	NoColor bool
	Verbose bool
}

// ExitCodeNotReady is the exit code for a task that exists but has not
// reached a terminal state yet. Scripts poll on it without parsing
// output.
const ExitCodeNotReady = 4

// ExitError carries an exit code through the cobra error path. A nil
// Err means the command already printed what it had to say.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NotReady wraps err with the not-ready exit code.
func NotReady(err error) error {
	return &ExitError{Code: ExitCodeNotReady, Err: err}
}

// Connect opens the task store named by serverOrDir. Remote servers
// get the token resolved from --token, $NLPIPE_TOKEN, ./.nlpipe_token,
// or the saved credentials for that server, in that order.
func Connect(serverOrDir string) (store.Interface, func(), error) {
	token := credentials.ResolveToken(Flags.Token, serverOrDir)
	return taskstore.Connect(serverOrDir, token, 0)
}

// ReadArg returns arg as a document, reading stdin when arg is "-".
func ReadArg(arg string) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	return []byte(arg), nil
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// PrintResource prints data in the format selected by --output. Table
// format uses the provided renderer; JSON and YAML output the data
// itself.
func PrintResource(w io.Writer, data any, renderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.PrintTable(w, renderer)
	}
}
