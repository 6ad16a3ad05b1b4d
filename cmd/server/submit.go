package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kiranshivaraju/eventpredict/internal/client"
	"github.com/kiranshivaraju/eventpredict/internal/worker"
	"github.com/kiranshivaraju/eventpredict/pkg/models"
	"github.com/spf13/cobra"
)

type submitOptions struct {
	server     string
	modelsFile string
	dataFile   string
	sorted     bool
	wait       bool
	interval   time.Duration
	timeout    time.Duration
}

func newSubmitCmd() *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a prediction job to a running server",
		Long: `Create a job from a JSON file holding the model list, upload the CSV data
source, and optionally wait for the job to finish. The final job is printed
as JSON on stdout.

A model may give its classifier as a plain JSON "classifier" object instead
of the encoded "data" string; it is encoded before the job is created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.NewHTTPClient(opts.server, 5*time.Minute)
			return runSubmit(cmd.Context(), c, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&opts.modelsFile, "models", "", "JSON file with the models array (required)")
	cmd.Flags().StringVar(&opts.dataFile, "data", "", "CSV data source (required)")
	cmd.Flags().BoolVar(&opts.sorted, "sorted", false, "data source is already sorted by time")
	cmd.Flags().BoolVar(&opts.wait, "wait", true, "wait for the job to finish")
	cmd.Flags().DurationVar(&opts.interval, "poll", time.Second, "status poll interval while waiting")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Minute, "give up waiting after this long")
	_ = cmd.MarkFlagRequired("models")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func runSubmit(ctx context.Context, c client.Client, opts submitOptions, out io.Writer) error {
	raw, err := os.ReadFile(opts.modelsFile)
	if err != nil {
		return fmt.Errorf("read models: %w", err)
	}
	ms, err := parseModels(raw)
	if err != nil {
		return err
	}

	id, err := c.CreateJob(ctx, models.CreateJobRequest{Models: ms, SortedData: opts.sorted})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	f, err := os.Open(opts.dataFile)
	if err != nil {
		return fmt.Errorf("open data: %w", err)
	}
	defer f.Close()

	view, err := c.UploadDataSource(ctx, id, f)
	if err != nil {
		return fmt.Errorf("upload data for job %s: %w", id, err)
	}

	if opts.wait {
		waitCtx, cancel := context.WithTimeout(ctx, opts.timeout)
		defer cancel()
		view, err = c.WaitForJob(waitCtx, id, opts.interval)
		if err != nil {
			return fmt.Errorf("wait for job %s: %w", id, err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		return err
	}
	if view.Status == models.JobStatusFailed {
		return fmt.Errorf("job %s failed", id)
	}
	return nil
}

// modelSpec is a models file entry. A plain classifier object is encoded
// into Data here, so files need not carry the gzip/base64 form.
type modelSpec struct {
	models.Model
	Classifier json.RawMessage `json:"classifier,omitempty"`
}

func parseModels(raw []byte) ([]models.Model, error) {
	var specs []modelSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("parse models: %w", err)
	}
	ms := make([]models.Model, 0, len(specs))
	for _, spec := range specs {
		m := spec.Model
		if len(spec.Classifier) > 0 {
			if m.Data != "" {
				return nil, fmt.Errorf("model %s: set either data or classifier, not both", m.ID)
			}
			data, err := worker.EncodeClassifier(spec.Classifier)
			if err != nil {
				return nil, fmt.Errorf("model %s: %w", m.ID, err)
			}
			m.Data = data
		}
		ms = append(ms, m)
	}
	return ms, nil
}
