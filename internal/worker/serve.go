package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// Serve is the unit process protocol: read one job document from in, run it,
// and write exactly one terminal snapshot to out.
func Serve(ctx context.Context, in io.Reader, out io.Writer, p models.Pipeline) error {
	var job models.Job
	if err := json.NewDecoder(in).Decode(&job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}

	final := Run(ctx, job, p)

	if err := json.NewEncoder(out).Encode(final); err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}
