package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for task operations. HTTP keys follow
// OpenTelemetry semantic conventions; task keys use the "task." prefix.
const (
	AttrModule      = "task.module"
	AttrTaskID      = "task.id"
	AttrTaskStatus  = "task.status"
	AttrDocBytes    = "task.doc_bytes"
	AttrResultBytes = "task.result_bytes"

	AttrWorkerID = "worker.id"

	AttrHTTPMethod = "http.request.method"
	AttrHTTPRoute  = "http.route"
	AttrHTTPStatus = "http.response.status_code"
)

// Span names.
const (
	// SpanHTTPRequest is the root span for REST API request handling
	SpanHTTPRequest = "http.request"

	// SpanProcess covers a single task run inside a worker
	SpanProcess = "worker.process"
)

// Module returns an attribute for the module name
func Module(name string) attribute.KeyValue {
	return attribute.String(AttrModule, name)
}

// TaskID returns an attribute for the task id
func TaskID(id string) attribute.KeyValue {
	return attribute.String(AttrTaskID, id)
}

// TaskStatus returns an attribute for a task status name
func TaskStatus(status string) attribute.KeyValue {
	return attribute.String(AttrTaskStatus, status)
}

// DocBytes returns an attribute for the document size
func DocBytes(n int) attribute.KeyValue {
	return attribute.Int(AttrDocBytes, n)
}

// ResultBytes returns an attribute for the result size
func ResultBytes(n int) attribute.KeyValue {
	return attribute.Int(AttrResultBytes, n)
}

// WorkerID returns an attribute for the worker instance id
func WorkerID(id string) attribute.KeyValue {
	return attribute.String(AttrWorkerID, id)
}

// HTTPMethod returns an attribute for the request method
func HTTPMethod(method string) attribute.KeyValue {
	return attribute.String(AttrHTTPMethod, method)
}

// HTTPRoute returns an attribute for the matched route pattern
func HTTPRoute(route string) attribute.KeyValue {
	return attribute.String(AttrHTTPRoute, route)
}

// HTTPStatus returns an attribute for the response status code
func HTTPStatus(code int) attribute.KeyValue {
	return attribute.Int(AttrHTTPStatus, code)
}

// StartProcessSpan starts a span for one task run in a worker.
func StartProcessSpan(ctx context.Context, module, id string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{Module(module), TaskID(id)}, attrs...)
	return StartSpan(ctx, SpanProcess, trace.WithAttributes(all...))
}

// StartRequestSpan starts the root span for an incoming HTTP request.
func StartRequestSpan(ctx context.Context, method, route string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := append([]attribute.KeyValue{HTTPMethod(method), HTTPRoute(route)}, attrs...)
	return StartSpan(ctx, SpanHTTPRequest, trace.WithAttributes(all...))
}
