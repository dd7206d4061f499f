package api

import (
	"html/template"
	"net/http"
	"time"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
	"github.com/nlpipe/nlpipe/pkg/task"
)

// indexTemplate renders the human status page: one row per module with
// its task counts.
var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<title>NLPipe</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.3em 0.8em; text-align: right; }
th:first-child, td:first-child { text-align: left; }
code { background: #f4f4f4; padding: 0.1em 0.3em; }
</style>
</head>
<body>
<h1>NLPipe server</h1>
<p>Version {{.Version}}{{if .Dir}}, serving tasks from <code>{{.Dir}}</code>{{end}}</p>
{{if .Modules}}
<table>
<tr><th>Module</th><th>PENDING</th><th>STARTED</th><th>DONE</th><th>ERROR</th><th>Total</th></tr>
{{range .Modules}}
<tr>
<td><a href="/api/modules/{{.Name}}/statistics">{{.Name}}</a></td>
<td>{{.Pending}}</td><td>{{.Started}}</td><td>{{.Done}}</td><td>{{.Error}}</td><td>{{.Total}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No modules have tasks yet.</p>
{{end}}
</body>
</html>
`))

// indexData is the template context of the status page.
type indexData struct {
	Version string
	Dir     string
	Modules []moduleRow
}

type moduleRow struct {
	Name    string
	Pending int
	Started int
	Done    int
	Error   int
	Total   int
}

// IndexHandler serves the unauthenticated status endpoints: the human
// index page and the liveness probe.
type IndexHandler struct {
	store    store.Interface
	registry *processor.Registry
	version  string
	started  time.Time
}

// NewIndexHandler creates the status page handler.
func NewIndexHandler(st store.Interface, registry *processor.Registry, version string) *IndexHandler {
	return &IndexHandler{
		store:    st,
		registry: registry,
		version:  version,
		started:  time.Now(),
	}
}

// Index handles GET /: a human-readable overview of every module and its
// task counts.
func (h *IndexHandler) Index(w http.ResponseWriter, r *http.Request) {
	modules, err := knownModules(r, h.store, h.registry)
	if err != nil {
		internalError(w, r, err)
		return
	}

	data := indexData{Version: h.version}
	// Filesystem-backed stores expose their directory; remote ones do not.
	if d, ok := h.store.(interface{ Dir() string }); ok {
		data.Dir = d.Dir()
	}
	for _, module := range modules {
		stats, err := h.store.Statistics(r.Context(), module)
		if err != nil {
			internalError(w, r, err)
			return
		}
		data.Modules = append(data.Modules, moduleRow{
			Name:    module,
			Pending: stats[task.StatusPending],
			Started: stats[task.StatusStarted],
			Done:    stats[task.StatusDone],
			Error:   stats[task.StatusError],
			Total:   stats.Total(),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := indexTemplate.Execute(w, data); err != nil {
		logger.Debug("Failed to render index page", "error", err)
	}
}

// healthzResponse is the liveness probe body.
type healthzResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Healthz handles GET /healthz.
func (h *IndexHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	})
}
