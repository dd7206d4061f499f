package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/internal/telemetry"
	"github.com/nlpipe/nlpipe/pkg/auth"
	"github.com/nlpipe/nlpipe/pkg/metrics"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
)

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET / - Human status page with per-module task counts
//   - GET /healthz - Liveness probe
//   - GET /metrics - Prometheus metrics (only with a gatherer)
//   - GET|HEAD /checktoken - Token verification
//   - GET /api/statistics - Task counts for every module
//   - POST /api/modules/{module}/ - Submit a document for processing
//   - GET /api/modules/{module}/ - Claim the oldest queued task
//   - GET /api/modules/{module}/statistics - Task counts for one module
//   - POST /api/modules/{module}/bulk/status - Status of many tasks
//   - POST /api/modules/{module}/bulk/result - Results of many tasks
//   - POST /api/modules/{module}/bulk/process - Submit many documents
//   - HEAD /api/modules/{module}/{id} - Task status as HTTP status code
//   - GET /api/modules/{module}/{id} - Task result
//   - PUT /api/modules/{module}/{id} - Store a task outcome
//
// A nil tokens service disables authentication; everything under /api and
// /checktoken is then open. A nil gatherer disables the /metrics endpoint.
func NewRouter(st store.Interface, registry *processor.Registry, tokens *auth.TokenService, m *metrics.Metrics, gatherer prometheus.Gatherer, version string) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters. Tracing sits above the logger
	// so completion lines can carry the trace id.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(traceRequests)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestMetrics(m))

	tasks := NewTaskHandler(st, registry, m)
	index := NewIndexHandler(st, registry, version)

	// Unauthenticated surface: status page, probes, metrics
	r.Get("/", index.Index)
	r.Get("/healthz", index.Healthz)
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// Task API - authenticated unless the token service is nil
	r.Group(func(r chi.Router) {
		if tokens != nil {
			r.Use(TokenAuth(tokens))
		}

		checktoken := func(w http.ResponseWriter, _ *http.Request) {
			if tokens != nil {
				writeText(w, http.StatusOK, "Authentication OK\n")
			} else {
				writeText(w, http.StatusOK, "Authentication disabled\n")
			}
		}
		r.Get("/checktoken", checktoken)
		r.Head("/checktoken", checktoken)

		r.Get("/api/statistics", tasks.Statistics)

		r.Route("/api/modules/{module}", func(r chi.Router) {
			r.Post("/", tasks.Process)
			r.Get("/", tasks.Claim)

			r.Get("/statistics", tasks.ModuleStatistics)
			r.Post("/bulk/status", tasks.BulkStatus)
			r.Post("/bulk/result", tasks.BulkResult)
			r.Post("/bulk/process", tasks.BulkProcess)

			r.Head("/{id}", tasks.Status)
			r.Get("/{id}", tasks.Result)
			r.Put("/{id}", tasks.Put)
		})
	})

	return r
}

// isProbePath returns true for endpoints polled by machines rather than
// people.
func isProbePath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

// requestLogger is a custom middleware that logs requests using the
// internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
//   - Probe requests are logged at DEBUG level to reduce noise
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}
		if traceID := telemetry.TraceID(r.Context()); traceID != "" {
			logArgs = append(logArgs, "trace_id", traceID)
		}

		// Log probe requests at DEBUG to avoid polluting logs
		if isProbePath(r.URL.Path) {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}

// requestMetrics records request latency per method, route pattern and
// status code. The chi route pattern keeps the label cardinality bounded
// regardless of how many task ids pass through.
func requestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.RecordHTTPRequest(r.Method, route, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
		})
	}
}

// traceRequests wraps each request in a span when tracing is enabled.
// The route attribute is set after the handler runs, once chi has
// resolved the route pattern.
func traceRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !telemetry.IsEnabled() {
			next.ServeHTTP(w, r)
			return
		}

		ctx, span := telemetry.StartRequestSpan(r.Context(), r.Method, r.URL.Path)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if route := chi.RouteContext(r.Context()).RoutePattern(); route != "" {
			telemetry.SetAttributes(ctx, telemetry.HTTPRoute(route))
		}
		telemetry.SetAttributes(ctx, telemetry.HTTPStatus(ww.Status()))
	})
}
