package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kiranshivaraju/eventpredict/internal/pipeline/mock"
	"github.com/kiranshivaraju/eventpredict/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame() *models.Frame {
	return &models.Frame{
		Columns: []string{"a"},
		Times:   []time.Time{time.Unix(0, 0).UTC(), time.Unix(60, 0).UTC()},
		Rows:    [][]float64{{1}, {2}},
	}
}

func TestMockPipeline_Default(t *testing.T) {
	p := mock.NewMockPipeline()
	assert.Equal(t, "mock", p.Name())

	preds, err := p.Predict(context.Background(), frame(), models.ModelConfig{}, []byte("abc"))
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, 3.0, preds[0].Value)
	assert.Equal(t, time.Unix(60, 0).UTC(), preds[1].Time)
}

func TestMockPipeline_NilFunc(t *testing.T) {
	p := &mock.MockPipeline{Name_: "empty"}
	preds, err := p.Predict(context.Background(), frame(), models.ModelConfig{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, preds)
}

func TestFailingPipeline(t *testing.T) {
	boom := errors.New("boom")
	p := mock.NewFailingPipeline(boom)
	_, err := p.Predict(context.Background(), frame(), models.ModelConfig{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestBlockingPipeline(t *testing.T) {
	p := mock.NewBlockingPipeline()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Predict(ctx, frame(), models.ModelConfig{}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
