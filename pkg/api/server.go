package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/auth"
	"github.com/nlpipe/nlpipe/pkg/metrics"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
)

// Server provides the HTTP front of a task store.
//
// It speaks the NLPipe wire protocol: clients POST documents, workers GET
// tasks and PUT results, and everybody polls status with HEAD. The server
// itself never processes documents; it only moves them in and out of the
// store.
//
// Endpoints:
//   - GET / : Human status page
//   - GET /healthz: Liveness probe
//   - GET /metrics: Prometheus metrics (when a gatherer is configured)
//   - GET|HEAD /checktoken: Token verification
//   - GET /api/statistics: Task counts for every module
//   - /api/modules/{module}/...: Task submission, claiming and results
//
// The server supports graceful shutdown with a drain timeout.
type Server struct {
	server       *http.Server
	store        store.Interface
	registry     *processor.Registry
	tokens       *auth.TokenService
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates a new API HTTP server.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests.
//
// Unless authentication is disabled, the token service is created
// internally: config.Secret when set, otherwise a secret derived from the
// machine identity.
//
// Parameters:
//   - config: Server configuration (bind address, timeouts, auth)
//   - st: Task store the API fronts
//   - registry: Registered processing modules; decides which module names
//     accept new tasks
//   - m: Request and task counters (nil disables recording)
//   - gatherer: Source for the /metrics endpoint (nil disables the endpoint)
//
// Returns a configured but not yet started Server.
func NewServer(config Config, st store.Interface, registry *processor.Registry, m *metrics.Metrics, gatherer prometheus.Gatherer) (*Server, error) {
	config.applyDefaults()

	if st == nil {
		return nil, errors.New("api: store is required")
	}
	if registry == nil {
		registry = processor.NewRegistry()
	}

	var tokens *auth.TokenService
	if !config.DisableAuthentication {
		secret, err := auth.DeriveSecret(config.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to derive token secret: %w", err)
		}
		tokens, err = auth.NewTokenService(secret)
		if err != nil {
			return nil, fmt.Errorf("failed to create token service: %w", err)
		}
	}

	router := NewRouter(st, registry, tokens, m, gatherer, config.Version)

	server := &http.Server{
		Addr:         net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server:   server,
		store:    st,
		registry: registry,
		tokens:   tokens,
		config:   config,
	}, nil
}

// Start starts the API HTTP server and blocks until the context is
// cancelled or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the server fails to start or shutdown encounters an error
func (s *Server) Start(ctx context.Context) error {
	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("API server listening",
			"addr", s.server.Addr,
			"auth", s.tokens != nil,
		)
		logger.Debug("API endpoints available",
			"index", fmt.Sprintf("http://%s/", s.server.Addr),
			"health", fmt.Sprintf("http://%s/healthz", s.server.Addr),
			"modules", fmt.Sprintf("http://%s/api/modules/", s.server.Addr),
		)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		logger.Info("API server shutdown signal received")
		// Create new context with timeout for graceful shutdown
		// Don't use the cancelled ctx as it would cause immediate shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	}
}

// Stop initiates graceful shutdown of the API server.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("API server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
			logger.Error("API server shutdown error", "error", err)
		} else {
			logger.Info("API server stopped gracefully")
		}
	})
	return shutdownErr
}

// Handler returns the server's HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the address the server binds to.
func (s *Server) Addr() string {
	return s.server.Addr
}

// TokenService returns the token service, or nil when authentication is
// disabled.
func (s *Server) TokenService() *auth.TokenService {
	return s.tokens
}
