package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/internal/telemetry"
	"github.com/nlpipe/nlpipe/internal/version"
	"github.com/nlpipe/nlpipe/pkg/api"
	"github.com/nlpipe/nlpipe/pkg/auth"
	"github.com/nlpipe/nlpipe/pkg/config"
	"github.com/nlpipe/nlpipe/pkg/metrics"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
	storefs "github.com/nlpipe/nlpipe/pkg/store/fs"
	"github.com/nlpipe/nlpipe/pkg/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// --print-token needs nothing but the signing secret, so it runs
	// before any of the server machinery comes up.
	if printToken, _ := cmd.Flags().GetBool("print-token"); printToken {
		return runPrintToken(cfg, cmd.OutOrStdout())
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "nlpipe",
		ServiceVersion: version.Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "nlpipe",
		ServiceVersion: version.Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	dir, err := resolveStoreDir(cfg, args)
	if err != nil {
		return err
	}

	st, err := storefs.New(storefs.DefaultConfig(dir))
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()
	logger.Info("Serving task store", "dir", dir)

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	logger.Info("Processors registered", "modules", registry.List())

	if cfg.Server.DisableAuthentication {
		logger.Warn("** Authentication disabled! **")
	}

	m, gatherer := buildMetrics(cfg, st)

	server, err := api.NewServer(api.Config{
		Host:                  cfg.Server.Host,
		Port:                  cfg.Server.Port,
		DisableAuthentication: cfg.Server.DisableAuthentication,
		Secret:                cfg.Server.Secret,
		Version:               version.Version,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		ShutdownTimeout:       cfg.ShutdownTimeout,
	}, st, registry, m, gatherer)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	pool, err := buildWorkerPool(cmd, cfg, st, registry)
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM cancel the context; the server and pool both shut
	// down on cancellation and the group waits for them.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ctx)
	})
	if pool != nil {
		g.Go(func() error {
			return pool.Run(ctx)
		})
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	return g.Wait()
}

// runPrintToken mints a token for the configured secret and prints it.
func runPrintToken(cfg *config.Config, out io.Writer) error {
	secret, err := auth.DeriveSecret(cfg.Server.Secret)
	if err != nil {
		return fmt.Errorf("failed to derive signing secret: %w", err)
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		return err
	}
	token, err := tokens.Mint()
	if err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}
	_, err = fmt.Fprintf(out, "Authentication token:\n%s\n", token)
	return err
}

// resolveStoreDir picks the storage root: the positional argument wins,
// then the configured dir (which includes $NLPIPE_DIR), then a fresh
// temporary directory.
func resolveStoreDir(cfg *config.Config, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if cfg.Store.Dir != "" {
		return cfg.Store.Dir, nil
	}
	dir, err := os.MkdirTemp("", "nlpipe_")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary store: %w", err)
	}
	logger.Warn("No storage directory configured, using a temporary one; results will not survive restarts",
		"dir", dir)
	return dir, nil
}

// buildRegistry registers the built-in upper module plus every
// processor declared in the configuration.
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

// buildMetrics wires a Prometheus registry with the task counters and
// the queue depth collector. Disabled metrics yield a nil gatherer,
// which turns off the /metrics endpoint.
func buildMetrics(cfg *config.Config, st store.Interface) (*metrics.Metrics, prometheus.Gatherer) {
	if !cfg.Metrics.Enabled {
		return metrics.NullMetrics(), nil
	}
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg)
	reg.MustRegister(metrics.NewQueueDepthCollector(st))
	return m, reg
}

// buildWorkerPool creates the embedded pool when --workers was given or
// the configuration names worker modules. Returns (nil, nil) when no
// pool should run.
func buildWorkerPool(cmd *cobra.Command, cfg *config.Config, st store.Interface, registry *processor.Registry) (*worker.Pool, error) {
	modules := cfg.Worker.Modules
	if cmd.Flags().Changed("workers") {
		requested, _ := cmd.Flags().GetStringSlice("workers")
		if len(requested) == 1 && requested[0] == "all" {
			modules = nil
		} else {
			modules = requested
		}
	} else if len(modules) == 0 {
		return nil, nil
	}

	workerCfg := worker.DefaultConfig()
	workerCfg.Modules = modules
	workerCfg.Processes = cfg.Worker.Processes
	workerCfg.PollInterval = cfg.Worker.PollInterval
	workerCfg.QuitOnEmpty = cfg.Worker.QuitOnEmpty
	workerCfg.Watch = cfg.Worker.Watch

	pool, err := worker.New(st, registry, workerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return pool, nil
}
