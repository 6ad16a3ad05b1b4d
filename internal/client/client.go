// Package client talks to a running eventpredict server over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// Sentinel errors for API client failures.
var (
	ErrUnreachable = errors.New("server unreachable")
	ErrAPI         = errors.New("api error")
	ErrTimeout     = errors.New("request timeout")
)

// APIError is a non-2xx answer decoded from the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d %s: %s", ErrAPI, e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

// Client is the interface for driving prediction jobs remotely.
type Client interface {
	CreateJob(ctx context.Context, req models.CreateJobRequest) (string, error)
	UploadDataSource(ctx context.Context, jobID string, data io.Reader) (models.JobView, error)
	GetJob(ctx context.Context, jobID string) (models.JobView, error)
	WaitForJob(ctx context.Context, jobID string, interval time.Duration) (models.JobView, error)
	Health(ctx context.Context) error
}

// HTTPClient implements Client using the server's HTTP API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new API client. timeout bounds each request,
// not WaitForJob as a whole.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) CreateJob(ctx context.Context, req models.CreateJobRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", "application/json", bytes.NewReader(body), http.StatusCreated, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (c *HTTPClient) UploadDataSource(ctx context.Context, jobID string, data io.Reader) (models.JobView, error) {
	var view models.JobView
	err := c.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(jobID), "text/csv", data, http.StatusAccepted, &view)
	return view, err
}

func (c *HTTPClient) GetJob(ctx context.Context, jobID string) (models.JobView, error) {
	var view models.JobView
	err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(jobID), "", nil, http.StatusOK, &view)
	return view, err
}

// WaitForJob polls the job every interval until it reaches a terminal status
// or ctx is done.
func (c *HTTPClient) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (models.JobView, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		view, err := c.GetJob(ctx, jobID)
		if err != nil {
			return view, err
		}
		if view.Status.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, fmt.Errorf("%w: job %s still %s: %v", ErrTimeout, jobID, view.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *HTTPClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", "", nil, http.StatusOK, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path, contentType string, body io.Reader, want int, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}

	env := dataEnvelope{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var env errorEnvelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// --- response envelopes ---

type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
