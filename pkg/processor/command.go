package processor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Command wraps an external tool as a processing module. The document is
// piped to the tool's stdin and stdout becomes the result, which covers the
// common case of NLP toolchains invoked as filters (tokenizers, parsers,
// taggers).
//
// Instances are declared in the configuration file:
//
//	processors:
//	  command:
//	    - name: tokenize
//	      command: ["bin/tokenizer", "--stdin"]
//	      dir: /opt/toolchain
type Command struct {
	name    string
	command []string
	dir     string
	env     []string
}

// CommandConfig describes one command processor.
type CommandConfig struct {
	// Name is the module name tasks are enqueued under.
	Name string `mapstructure:"name" yaml:"name" validate:"required"`

	// Command is the argv of the tool. The document is written to its
	// stdin; its stdout is stored as the result.
	Command []string `mapstructure:"command" yaml:"command" validate:"required,min=1"`

	// Dir is the working directory for the tool (optional).
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`

	// Env is extra environment in KEY=VALUE form, appended to the
	// worker's own environment (optional).
	Env []string `mapstructure:"env" yaml:"env,omitempty"`
}

// NewCommand creates a command processor from its configuration.
func NewCommand(cfg CommandConfig) (*Command, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("command processor needs a name")
	}
	if len(cfg.Command) == 0 {
		return nil, fmt.Errorf("command processor %q needs a command", cfg.Name)
	}
	return &Command{
		name:    cfg.Name,
		command: cfg.Command,
		dir:     cfg.Dir,
		env:     cfg.Env,
	}, nil
}

// Name returns the configured module name.
func (c *Command) Name() string { return c.name }

// CheckStatus verifies the tool binary can be found.
func (c *Command) CheckStatus(ctx context.Context) error {
	if _, err := exec.LookPath(c.command[0]); err != nil {
		return fmt.Errorf("module %s: %w", c.name, err)
	}
	return nil
}

// Process runs the tool with the document on stdin and returns its stdout.
// A failing tool yields an error carrying its stderr, which ends up as the
// task's stored error message.
func (c *Command) Process(ctx context.Context, id string, doc []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.command[0], c.command[1:]...)
	cmd.Dir = c.dir
	if len(c.env) > 0 {
		cmd.Env = append(cmd.Environ(), c.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(doc)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("command %q failed: %w: %s", c.command[0], err, msg)
		}
		return nil, fmt.Errorf("command %q failed: %w", c.command[0], err)
	}

	return stdout.Bytes(), nil
}

// Convert is not supported for command results; the tool's raw output is
// the only shape this processor knows.
func (c *Command) Convert(id string, result []byte, format string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s results to %q", ErrCannotConvert, c.name, format)
}

var _ Processor = (*Command)(nil)
