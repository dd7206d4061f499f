// Package commands implements the CLI commands for the nlpipe worker.
package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/nlpipe/nlpipe/internal/cli/credentials"
	"github.com/nlpipe/nlpipe/internal/cli/taskstore"
	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/config"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/worker"
	"github.com/spf13/cobra"
)

// rootCmd runs the worker pool. The first positional argument selects
// the task store: a http(s):// URL connects through the REST API,
// anything else is a local store directory.
var rootCmd = &cobra.Command{
	Use:   "nlpipe-worker [flags] <server-or-dir> <module>...",
	Short: "NLPipe worker",
	Long: `nlpipe-worker claims tasks from a store and runs processing modules on them.

The worker can sit next to the server on the same filesystem or connect
to a remote server over REST; the only difference is the first argument.

Examples:
  # Work a local store
  nlpipe-worker /srv/nlpipe upper

  # Connect to a remote server, two processes per module
  nlpipe-worker --processes 2 http://nlpipe.example.com:5001 upper tokenize

  # Drain the queue and exit
  nlpipe-worker --quit /srv/nlpipe upper`,
	Args:          cobra.MinimumNArgs(2),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWorker,
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
	f.IntP("processes", "p", 1, "Number of processes per module")
	f.BoolP("quit", "q", false, "Quit when no more tasks are available")
	f.StringP("token", "t", "", "Auth token (default reads ./.nlpipe_token or $NLPIPE_TOKEN)")
	f.Duration("poll-interval", 0, "How long to sleep between polls of an empty queue")

	rootCmd.AddCommand(versionCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := initLogger(cfg); err != nil {
		return err
	}

	serverOrDir := args[0]
	modules := args[1:]

	explicitToken, _ := cmd.Flags().GetString("token")
	token := credentials.ResolveToken(explicitToken, serverOrDir)
	if token == "" {
		token = cfg.Client.Token
	}

	st, cleanup, err := taskstore.Connect(serverOrDir, token, cfg.Client.Timeout)
	if err != nil {
		return err
	}
	defer cleanup()

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	workerCfg := worker.DefaultConfig()
	workerCfg.Modules = modules
	workerCfg.Processes = cfg.Worker.Processes
	workerCfg.PollInterval = cfg.Worker.PollInterval
	workerCfg.QuitOnEmpty = cfg.Worker.QuitOnEmpty
	workerCfg.Watch = cfg.Worker.Watch

	pool, err := worker.New(st, registry, workerCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return pool.Run(ctx)
}

// loadConfig loads the configuration and applies flag overrides. Only
// flags the user actually set override the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("processes") {
		cfg.Worker.Processes, _ = flags.GetInt("processes")
	}
	if flags.Changed("poll-interval") {
		cfg.Worker.PollInterval, _ = flags.GetDuration("poll-interval")
	}
	if quit, _ := flags.GetBool("quit"); quit {
		cfg.Worker.QuitOnEmpty = true
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "DEBUG"
	}
	return cfg, nil
}

// initLogger initializes the structured logger from configuration.
func initLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// buildRegistry registers the built-in upper module plus every
// processor declared in the configuration. A worker that should run
// external tools gets them from the processors section of the config.
func buildRegistry(cfg *config.Config) (*processor.Registry, error) {
	registry := processor.NewRegistry()
	registry.MustRegister(processor.NewUpper())

	for _, c := range cfg.Processors.Commands {
		p, err := processor.NewCommand(c)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	for _, h := range cfg.Processors.HTTP {
		p, err := processor.NewHTTPRelay(h)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
