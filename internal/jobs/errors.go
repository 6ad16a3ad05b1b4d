package jobs

import "errors"

var (
	// ErrValidation rejects a malformed job-creation request. Nothing is stored.
	ErrValidation = errors.New("invalid job request")
	// ErrNotFound means no job has the given id.
	ErrNotFound = errors.New("job not found")
	// ErrConflict means the job already has a data source attached.
	ErrConflict = errors.New("job already has a data source")
)

// Failure reasons recorded on jobs the units could not report for themselves.
const (
	reasonUnitCrashed = "execution unit crashed"
	reasonShutdown    = "dispatcher shutting down"
)
