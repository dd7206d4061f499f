package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/nlpipe/nlpipe/pkg/fingerprint"
	"github.com/nlpipe/nlpipe/pkg/processor"
	"github.com/nlpipe/nlpipe/pkg/store"
	"github.com/nlpipe/nlpipe/pkg/task"
)

var _ store.Interface = (*Client)(nil)

// enqueueQuery translates enqueue options into query parameters.
// Flags are sent as "1", which every server version accepts as true.
func enqueueQuery(opts store.EnqueueOptions) url.Values {
	query := url.Values{}
	if opts.ID != "" {
		query.Set("id", opts.ID)
	}
	if opts.ResetError {
		query.Set("reset_error", "1")
	}
	if opts.ResetPending {
		query.Set("reset_pending", "1")
	}
	return query
}

// Enqueue submits a document for processing and returns its id.
func (c *Client) Enqueue(ctx context.Context, module string, doc []byte, opts store.EnqueueOptions) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, modulePath(module), enqueueQuery(opts), bytes.NewReader(doc))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, body, err := c.do(req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", apiError(resp.StatusCode, body)
	}

	id := resp.Header.Get("ID")
	if id == "" {
		// Older servers put the id only in the body
		id = string(bytes.TrimSpace(body))
	}
	if id == "" {
		return "", errors.New("server response carries no task id")
	}
	return id, nil
}

// Status reports the lifecycle state of a task, read from the Status
// header of a HEAD request.
func (c *Client) Status(ctx context.Context, module, id string) (task.Status, error) {
	req, err := c.newRequest(ctx, http.MethodHead, taskPath(module, id), nil, nil)
	if err != nil {
		return task.StatusUnknown, err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return task.StatusUnknown, err
	}

	header := resp.Header.Get("Status")
	if header == "" {
		return task.StatusUnknown, apiError(resp.StatusCode, body)
	}
	status, err := task.ParseStatus(header)
	if err != nil {
		return task.StatusUnknown, fmt.Errorf("unexpected Status header %q: %w", header, err)
	}
	return status, nil
}

// Claim fetches the oldest queued task of a module, marking it STARTED on
// the server. An empty queue yields (nil, nil).
func (c *Client) Claim(ctx context.Context, module string) (*store.Task, error) {
	req, err := c.newRequest(ctx, http.MethodGet, modulePath(module), nil, nil)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to the task below
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, apiError(resp.StatusCode, body)
	}

	id := resp.Header.Get("ID")
	if id == "" {
		return nil, errors.New("claim response carries no task id")
	}
	return &store.Task{Module: module, ID: id, Doc: body}, nil
}

// exceptionBody mirrors the JSON body of a 500 response.
type exceptionBody struct {
	ExceptionClass string `json:"exception_class"`
	Message        string `json:"message"`
}

// Result fetches the stored result of a task.
//
// Server responses map back onto store semantics: a 500 with an exception
// body becomes a *task.ProcessingError, a 404 becomes ErrNotReady and a
// 406 becomes ErrCannotConvert.
func (c *Client) Result(ctx context.Context, module, id, format string) ([]byte, error) {
	query := url.Values{}
	if format != "" {
		query.Set("format", format)
	}
	req, err := c.newRequest(ctx, http.MethodGet, taskPath(module, id), query, nil)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusInternalServerError:
		var exc exceptionBody
		if json.Unmarshal(body, &exc) == nil && exc.ExceptionClass != "" {
			return nil, &task.ProcessingError{Module: module, ID: id, Message: exc.Message}
		}
		return nil, apiError(resp.StatusCode, body)
	case http.StatusNotFound:
		return nil, fmt.Errorf("task %s/%s: %w", module, id, store.ErrNotReady)
	case http.StatusNotAcceptable:
		return nil, fmt.Errorf("format %q: %w", format, processor.ErrCannotConvert)
	default:
		return nil, apiError(resp.StatusCode, body)
	}
}

// put uploads a task outcome.
func (c *Client) put(ctx context.Context, module, id string, payload []byte, contentType string) error {
	req, err := c.newRequest(ctx, http.MethodPut, taskPath(module, id), nil, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, body, err := c.do(req)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return fmt.Errorf("task %s/%s: %w", module, id, store.ErrInvalidState)
	default:
		return apiError(resp.StatusCode, body)
	}
}

// StoreResult uploads a result for a claimed task, marking it DONE.
func (c *Client) StoreResult(ctx context.Context, module, id string, result []byte) error {
	return c.put(ctx, module, id, result, "text/plain; charset=utf-8")
}

// StoreError uploads an error message for a claimed task, marking it
// ERROR. The error MIME type tells the server to store it as a failure.
func (c *Client) StoreError(ctx context.Context, module, id string, message []byte) error {
	return c.put(ctx, module, id, message, task.ErrorMIME)
}

// BulkStatus reports the status of each id.
func (c *Client) BulkStatus(ctx context.Context, module string, ids []string) (map[string]task.Status, error) {
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ids: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, modulePath(module)+"bulk/status", nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var statuses map[string]task.Status
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("failed to decode bulk status response: %w", err)
	}
	return statuses, nil
}

// BulkResult fetches results for the given ids. Ids that are not DONE are
// omitted from the map.
func (c *Client) BulkResult(ctx context.Context, module string, ids []string, format string) (map[string][]byte, error) {
	payload, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ids: %w", err)
	}
	query := url.Values{}
	if format != "" {
		query.Set("format", format)
	}
	req, err := c.newRequest(ctx, http.MethodPost, modulePath(module)+"bulk/result", query, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode bulk result response: %w", err)
	}
	results := make(map[string][]byte, len(decoded))
	for id, result := range decoded {
		results[id] = []byte(result)
	}
	return results, nil
}

// BulkEnqueue submits several documents and returns their ids in input
// order.
func (c *Client) BulkEnqueue(ctx context.Context, module string, docs []store.Document, opts store.EnqueueOptions) ([]string, error) {
	payload, err := encodeBulkDocuments(docs)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	if opts.ResetError {
		query.Set("reset_error", "1")
	}
	if opts.ResetPending {
		query.Set("reset_pending", "1")
	}
	req, err := c.newRequest(ctx, http.MethodPost, modulePath(module)+"bulk/process", query, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var ids []string
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode bulk process response: %w", err)
	}
	return ids, nil
}

// encodeBulkDocuments builds the bulk/process request body. Documents
// without explicit ids go as a JSON list; as soon as one document carries
// an id the object form is used, with fingerprints filling the gaps. The
// object is assembled by hand because the server reads keys in document
// order.
func encodeBulkDocuments(docs []store.Document) ([]byte, error) {
	explicit := false
	for _, doc := range docs {
		if doc.ID != "" {
			explicit = true
			break
		}
	}

	if !explicit {
		bodies := make([]string, len(docs))
		for i, doc := range docs {
			bodies[i] = string(doc.Body)
		}
		return json.Marshal(bodies)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, doc := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		id := doc.ID
		if id == "" {
			id = fingerprint.Fingerprint(doc.Body)
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal id: %w", err)
		}
		value, err := json.Marshal(string(doc.Body))
		if err != nil {
			return nil, fmt.Errorf("failed to marshal document: %w", err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Statistics counts the tasks of a module per lifecycle state.
func (c *Client) Statistics(ctx context.Context, module string) (task.Statistics, error) {
	req, err := c.newRequest(ctx, http.MethodGet, modulePath(module)+"statistics", nil, nil)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var stats task.Statistics
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode statistics response: %w", err)
	}
	return stats, nil
}

// Modules lists the modules the server knows about.
func (c *Client) Modules(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/statistics", nil, nil)
	if err != nil {
		return nil, err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var stats map[string]task.Statistics
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to decode statistics response: %w", err)
	}
	modules := make([]string, 0, len(stats))
	for module := range stats {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules, nil
}

// CheckToken verifies connectivity and credentials against the server.
func (c *Client) CheckToken(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/checktoken", nil, nil)
	if err != nil {
		return err
	}

	resp, body, err := c.do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, body)
	}
	return nil
}
