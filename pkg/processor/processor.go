// Package processor defines the processing module interface and the
// registry that maps module names to implementations.
//
// A processor turns a document into a result. Workers look processors up by
// module name, and the REST facade consults the registry to decide which
// module names it accepts. Conversion of stored results into other output
// formats (e.g. json, csv) is also a processor concern, since only the
// module knows the shape of its own results.
package processor

import (
	"context"
	"errors"
)

// Standard processor errors.
var (
	// ErrUnknownModule indicates no processor is registered under the
	// requested name.
	//
	// HTTP mapping: 404 Not Found.
	ErrUnknownModule = errors.New("unknown module")

	// ErrCannotConvert indicates the processor does not support the
	// requested output format.
	//
	// HTTP mapping: 406 Not Acceptable.
	ErrCannotConvert = errors.New("result cannot be converted")
)

// Processor is a processing module.
//
// Process must be safe for concurrent use: the worker pool calls it from
// several goroutines at once.
type Processor interface {
	// Name returns the module name tasks are enqueued under.
	Name() string

	// CheckStatus verifies the module is operational (e.g. its backing
	// tool or service is reachable). Workers call this once at startup.
	CheckStatus(ctx context.Context) error

	// Process turns a document into a result. The id identifies the task
	// for logging and for processors that embed it in their output.
	Process(ctx context.Context, id string, doc []byte) ([]byte, error)

	// Convert renders a stored result in the given format. Processors
	// return ErrCannotConvert for formats they do not support. The raw
	// format never reaches Convert; stores hand it out directly.
	Convert(id string, result []byte, format string) ([]byte, error)
}
