package task

// ErrorMIME is the content type that marks an uploaded task outcome as an
// error message rather than a result. The REST facade stores a PUT body
// with this content type via StoreError, anything else via StoreResult.
const ErrorMIME = "application/prs.error+text"

// ProcessingError carries the stored error message of a task that ended in
// the ERROR state. Fetching the result of such a task returns one of these
// instead of a payload.
type ProcessingError struct {
	Module  string
	ID      string
	Message string
}

func (e *ProcessingError) Error() string {
	if e.Message == "" {
		return "task processing failed"
	}
	return e.Message
}
