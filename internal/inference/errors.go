package inference

import "errors"

var (
	// ErrCancelled settles requests cancelled by the caller.
	ErrCancelled = errors.New("operation was cancelled")
	// ErrWorker settles every pending request when the worker fails as a whole.
	ErrWorker = errors.New("worker error")
	// ErrModelNotLoaded is returned by RunInference before a model is loaded.
	ErrModelNotLoaded = errors.New("model not loaded")
	// ErrWorkerUnavailable is returned once the worker has failed; a new
	// client is required.
	ErrWorkerUnavailable = errors.New("worker unavailable")
	// ErrClosed is returned after Cleanup.
	ErrClosed = errors.New("inference client closed")
)

// RemoteError carries an error message reported by the worker for one
// request. Error returns the worker's message unchanged.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return e.Message }
