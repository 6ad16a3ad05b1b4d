package jobs

import (
	"context"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// Launcher starts one execution unit for a job.
type Launcher interface {
	Launch(ctx context.Context, job models.Job) (Unit, error)
}

// Unit is a running, isolated execution of one job. The dispatcher never
// touches a unit's internals; it only watches these channels.
type Unit interface {
	JobID() string
	// Done is closed once the unit has terminated, for whatever reason.
	Done() <-chan struct{}
	// Result yields at most one terminal job snapshot. It may be closed
	// once no snapshot will follow.
	Result() <-chan models.Job
	// ExitStatus describes how the unit terminated. Valid after Done.
	ExitStatus() string
	// Kill forces the unit to terminate.
	Kill() error
	// Release frees what the unit still holds. Called once, after Done.
	Release()
}

// ArtifactRemover deletes a job's data source once the job is over.
type ArtifactRemover interface {
	Remove(path string) error
}
