package mock

import (
	"context"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// MockPipeline satisfies models.Pipeline for testing.
type MockPipeline struct {
	Name_       string
	PredictFunc func(ctx context.Context, frame *models.Frame, cfg models.ModelConfig, classifier []byte) ([]models.RowPrediction, error)
}

func (m *MockPipeline) Name() string { return m.Name_ }

func (m *MockPipeline) Predict(ctx context.Context, frame *models.Frame, cfg models.ModelConfig, classifier []byte) ([]models.RowPrediction, error) {
	if m.PredictFunc != nil {
		return m.PredictFunc(ctx, frame, cfg, classifier)
	}
	return nil, nil
}

// NewMockPipeline returns a MockPipeline that emits len(classifier) for every row,
// so tests can tell models apart by their payload.
func NewMockPipeline() *MockPipeline {
	return &MockPipeline{
		Name_: "mock",
		PredictFunc: func(_ context.Context, frame *models.Frame, _ models.ModelConfig, classifier []byte) ([]models.RowPrediction, error) {
			out := make([]models.RowPrediction, frame.Len())
			for i := range out {
				out[i] = models.RowPrediction{Time: frame.Times[i], Value: float64(len(classifier))}
			}
			return out, nil
		},
	}
}

// NewFailingPipeline returns a MockPipeline that always returns the given error.
func NewFailingPipeline(err error) *MockPipeline {
	return &MockPipeline{
		Name_: "mock-failing",
		PredictFunc: func(_ context.Context, _ *models.Frame, _ models.ModelConfig, _ []byte) ([]models.RowPrediction, error) {
			return nil, err
		},
	}
}

// NewBlockingPipeline returns a MockPipeline that blocks until the context is cancelled.
func NewBlockingPipeline() *MockPipeline {
	return &MockPipeline{
		Name_: "mock-blocking",
		PredictFunc: func(ctx context.Context, _ *models.Frame, _ models.ModelConfig, _ []byte) ([]models.RowPrediction, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
}

var _ models.Pipeline = (*MockPipeline)(nil)
