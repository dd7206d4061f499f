package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Upper is a trivial processor that uppercases documents. It ships in every
// binary as the end-to-end smoke test module: enqueue a document, run a
// worker, and the result is immediately recognizable.
type Upper struct{}

// NewUpper creates the upper processor.
func NewUpper() *Upper {
	return &Upper{}
}

// Name returns "upper".
func (u *Upper) Name() string { return "upper" }

// CheckStatus always succeeds; upper has no external dependencies.
func (u *Upper) CheckStatus(ctx context.Context) error { return nil }

// Process returns the document with all letters uppercased.
func (u *Upper) Process(ctx context.Context, id string, doc []byte) ([]byte, error) {
	return bytes.ToUpper(doc), nil
}

// Convert supports the json format, wrapping the result in a small envelope:
//
//	{"id": "...", "status": "OK", "result": "..."}
func (u *Upper) Convert(id string, result []byte, format string) ([]byte, error) {
	if format != "json" {
		return nil, fmt.Errorf("%w: upper results to %q", ErrCannotConvert, format)
	}
	return json.Marshal(struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Result string `json:"result"`
	}{ID: id, Status: "OK", Result: string(result)})
}

var _ Processor = (*Upper)(nil)
