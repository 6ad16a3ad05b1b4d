package pipeline_test

import (
	"testing"

	"github.com/kiranshivaraju/eventpredict/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Logistic(t *testing.T) {
	p, err := pipeline.New("logistic")
	require.NoError(t, err)
	assert.Equal(t, "logistic", p.Name())
}

func TestNew_Threshold(t *testing.T) {
	p, err := pipeline.New("threshold")
	require.NoError(t, err)
	assert.Equal(t, "threshold", p.Name())
}

func TestNew_Unknown(t *testing.T) {
	_, err := pipeline.New("xgboost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline")
	assert.Contains(t, err.Error(), "xgboost")
}

func TestNew_Empty(t *testing.T) {
	_, err := pipeline.New("")
	require.Error(t, err)
}
