package commands

import (
	"fmt"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/config"
	"github.com/spf13/cobra"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
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

// loadConfig loads the configuration file named by --config (or the
// default location) and applies command-line overrides on top. Only
// flags the user actually set override the file: defaults shown in
// --help come from the config layer, not from pflag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("processes") {
		cfg.Worker.Processes, _ = flags.GetInt("processes")
	}
	if flags.Changed("disable-authentication") {
		cfg.Server.DisableAuthentication, _ = flags.GetBool("disable-authentication")
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "DEBUG"
	}
	return cfg, nil
}
