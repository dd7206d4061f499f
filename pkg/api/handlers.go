package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nlpipe/nlpipe/internal/logger"
	"github.com/nlpipe/nlpipe/pkg/metrics"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
	"github.com/nlpipe/nlpipe/pkg/task"
)

// TaskHandler serves the task lifecycle endpoints under /api/modules.
type TaskHandler struct {
	store    store.Interface
	registry *processor.Registry
	metrics  *metrics.Metrics
}

// NewTaskHandler creates a task handler backed by the given store.
// The registry decides which module names accept new documents.
func NewTaskHandler(st store.Interface, registry *processor.Registry, m *metrics.Metrics) *TaskHandler {
	return &TaskHandler{store: st, registry: registry, metrics: m}
}

// taskLocation builds the canonical URL path of a task.
func taskLocation(module, id string) string {
	return "/api/modules/" + module + "/" + id
}

// setIDHeader sets the ID response header. The header name predates this
// server and is all caps on the wire, so it bypasses Go's canonicalization
// (which would send "Id").
func setIDHeader(w http.ResponseWriter, id string) {
	w.Header()["ID"] = []string{id}
}

// truthyParam interprets a query parameter as a boolean flag.
// Accepted true values: 1, Y, true, yes (case-insensitive); everything
// else, including absence, is false.
func truthyParam(r *http.Request, name string) bool {
	switch strings.ToLower(r.URL.Query().Get(name)) {
	case "1", "y", "true", "yes":
		return true
	default:
		return false
	}
}

// Process handles POST /api/modules/{module}/.
//
// The request body is the document to process. An explicit id can be
// given with ?id=<id>; otherwise the id is the document fingerprint.
// ?reset_error and ?reset_pending re-queue tasks stuck in those states.
//
// Responds 202 with the id in the body (newline terminated) and in the
// ID and Location headers, or 404 if the module is not registered.
func (h *TaskHandler) Process(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	if !h.registry.Has(module) {
		writeText(w, http.StatusNotFound, fmt.Sprintf("Unknown module: %s\n", module))
		return
	}

	doc, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: cannot read request body\n")
		return
	}

	opts := store.EnqueueOptions{
		ID:           r.URL.Query().Get("id"),
		ResetError:   truthyParam(r, "reset_error"),
		ResetPending: truthyParam(r, "reset_pending"),
	}
	id, err := h.store.Enqueue(r.Context(), module, doc, opts)
	if err != nil {
		internalError(w, r, err)
		return
	}
	h.metrics.RecordEnqueue(module)

	setIDHeader(w, id)
	w.Header().Set("Location", taskLocation(module, id))
	writeText(w, http.StatusAccepted, id+"\n")
}

// Claim handles GET /api/modules/{module}/.
//
// Intended for workers: atomically claims the oldest queued task, marking
// it STARTED. Responds 200 with the document as body and the task id in
// the ID and Location headers, or 404 when the queue is empty.
//
// The module does not need to be registered on the server; remote workers
// bring their own processors.
func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")

	t, err := h.store.Claim(r.Context(), module)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if t == nil {
		writeText(w, http.StatusNotFound, fmt.Sprintf("Queue %s empty!\n", module))
		return
	}
	h.metrics.RecordClaim(module)

	setIDHeader(w, t.ID)
	w.Header().Set("Location", taskLocation(module, t.ID))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(t.Doc); err != nil {
		// The task stays STARTED even though the worker never saw it;
		// it can be re-queued with ?reset_pending.
		logger.Debug("Failed to deliver claimed task",
			"module", module, "id", t.ID, "error", err)
	}
}

// Status handles HEAD /api/modules/{module}/{id}.
//
// The task state is reported twice: as the Status response header and as
// the HTTP status code (UNKNOWN 404, PENDING/STARTED 202, DONE 200,
// ERROR 500).
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	id := chi.URLParam(r, "id")

	status, err := h.store.Status(r.Context(), module, id)
	if err != nil {
		internalError(w, r, err)
		return
	}

	w.Header().Set("Status", string(status))
	w.WriteHeader(status.HTTPCode())
}

// Result handles GET /api/modules/{module}/{id}.
//
// Responds:
//   - 200 with the stored result, converted when ?format= is given
//   - 500 with a JSON error body when processing failed
//   - 404 when the task is unknown or has no result yet
//   - 406 when the result cannot be converted to the requested format
func (h *TaskHandler) Result(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	id := chi.URLParam(r, "id")
	format := r.URL.Query().Get("format")

	result, err := h.store.Result(r.Context(), module, id, format)
	var procErr *task.ProcessingError
	switch {
	case errors.As(err, &procErr):
		writeException(w, http.StatusInternalServerError, "ProcessingError", procErr.Message)
		return
	case errors.Is(err, store.ErrNotReady):
		writeText(w, http.StatusNotFound, fmt.Sprintf("Error: Unknown document: %s/%s\n", module, id))
		return
	case errors.Is(err, processor.ErrCannotConvert):
		writeText(w, http.StatusNotAcceptable, err.Error()+"\n")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}

	if format == "json" {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result)
}

// Put handles PUT /api/modules/{module}/{id}.
//
// Workers upload task outcomes here. A Content-Type of
// application/prs.error+text marks the body as an error message; any
// other content type stores it as the result. Responds 204, or 409 when
// the task was never claimed.
func (h *TaskHandler) Put(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	id := chi.URLParam(r, "id")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: cannot read request body\n")
		return
	}

	// ParseMediaType strips parameters like charset; a missing or
	// unparsable content type counts as a result upload.
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == task.ErrorMIME {
		err = h.store.StoreError(r.Context(), module, id, payload)
		if err == nil {
			h.metrics.RecordError(module)
		}
	} else {
		err = h.store.StoreResult(r.Context(), module, id, payload)
		if err == nil {
			h.metrics.RecordResult(module)
		}
	}
	switch {
	case errors.Is(err, store.ErrInvalidState):
		writeText(w, http.StatusConflict, err.Error()+"\n")
		return
	case err != nil:
		internalError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BulkStatus handles POST /api/modules/{module}/bulk/status.
//
// The request body is a JSON list of task ids; the response maps each id
// to its state.
func (h *TaskHandler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")

	ids, err := decodeIDs(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: Please provide bulk IDs as a json list\n")
		return
	}

	statuses, err := h.store.BulkStatus(r.Context(), module, ids)
	if err != nil {
		internalError(w, r, err)
		return
	}

	body, err := json.MarshalIndent(statuses, "", "    ")
	if err != nil {
		internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// BulkResult handles POST /api/modules/{module}/bulk/result.
//
// The request body is a JSON list of task ids; the response maps each
// DONE id to its result, converted when ?format= is given. Ids without a
// result are omitted.
func (h *TaskHandler) BulkResult(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")

	ids, err := decodeIDs(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: Please provide bulk IDs as a json list\n")
		return
	}

	results, err := h.store.BulkResult(r.Context(), module, ids, r.URL.Query().Get("format"))
	if err != nil {
		internalError(w, r, err)
		return
	}

	out := make(map[string]string, len(results))
	for id, result := range results {
		out[id] = string(result)
	}
	writeJSON(w, http.StatusOK, out)
}

// BulkProcess handles POST /api/modules/{module}/bulk/process.
//
// The request body is either a JSON list of documents or a JSON object
// mapping explicit ids to documents. ?reset_error and ?reset_pending
// apply to every document. Responds with the JSON list of ids in input
// order, or 404 if the module is not registered.
func (h *TaskHandler) BulkProcess(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")
	if !h.registry.Has(module) {
		writeText(w, http.StatusNotFound, fmt.Sprintf("Unknown module: %s\n", module))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: cannot read request body\n")
		return
	}
	docs, err := decodeBulkDocuments(body)
	if err != nil {
		writeText(w, http.StatusBadRequest, "Error: Please provide bulk docs as a json list or {id: doc} object\n")
		return
	}

	opts := store.EnqueueOptions{
		ResetError:   truthyParam(r, "reset_error"),
		ResetPending: truthyParam(r, "reset_pending"),
	}
	ids, err := h.store.BulkEnqueue(r.Context(), module, docs, opts)
	if err != nil {
		internalError(w, r, err)
		return
	}
	for range ids {
		h.metrics.RecordEnqueue(module)
	}

	writeJSON(w, http.StatusOK, ids)
}

// ModuleStatistics handles GET /api/modules/{module}/statistics.
//
// Responds with the module's task count per state as JSON.
func (h *TaskHandler) ModuleStatistics(w http.ResponseWriter, r *http.Request) {
	module := chi.URLParam(r, "module")

	stats, err := h.store.Statistics(r.Context(), module)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Statistics handles GET /api/statistics.
//
// Responds with task counts per state for every module the store or the
// registry knows about.
func (h *TaskHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	modules, err := knownModules(r, h.store, h.registry)
	if err != nil {
		internalError(w, r, err)
		return
	}

	out := make(map[string]task.Statistics, len(modules))
	for _, module := range modules {
		stats, err := h.store.Statistics(r.Context(), module)
		if err != nil {
			internalError(w, r, err)
			return
		}
		out[module] = stats
	}
	writeJSON(w, http.StatusOK, out)
}

// knownModules returns the union of modules with tasks in the store and
// modules registered on the server, sorted by name.
func knownModules(r *http.Request, st store.Interface, registry *processor.Registry) ([]string, error) {
	modules, err := st.Modules(r.Context())
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(modules))
	for _, module := range modules {
		seen[module] = true
	}
	for _, module := range registry.List() {
		if !seen[module] {
			modules = append(modules, module)
			seen[module] = true
		}
	}
	sort.Strings(modules)
	return modules, nil
}

// decodeIDs reads a non-empty JSON list of task ids.
func decodeIDs(r io.Reader) ([]string, error) {
	var ids []string
	if err := json.NewDecoder(r).Decode(&ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.New("empty id list")
	}
	return ids, nil
}

// decodeBulkDocuments reads the bulk/process request body: either a JSON
// list of documents or a JSON object of {id: document}. The object form
// is walked token by token so that document order survives; decoding into
// a map would lose it.
func decodeBulkDocuments(data []byte) ([]store.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil, errors.New("not a json list or object")
	}

	var docs []store.Document
	switch delim {
	case '[':
		for dec.More() {
			var body string
			if err := dec.Decode(&body); err != nil {
				return nil, err
			}
			docs = append(docs, store.Document{Body: []byte(body)})
		}
	case '{':
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			id, ok := keyTok.(string)
			if !ok {
				return nil, errors.New("object key is not a string")
			}
			var body string
			if err := dec.Decode(&body); err != nil {
				return nil, err
			}
			docs = append(docs, store.Document{ID: id, Body: []byte(body)})
		}
	default:
		return nil, errors.New("not a json list or object")
	}
	return docs, nil
}
