package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeFilter_Limit(t *testing.T) {
	assert.Equal(t, defaultListLimit, OutcomeFilter{}.EffectiveLimit())
	assert.Equal(t, defaultListLimit, OutcomeFilter{Limit: -3}.EffectiveLimit())
	assert.Equal(t, 10, OutcomeFilter{Limit: 10}.EffectiveLimit())
	assert.Equal(t, maxListLimit, OutcomeFilter{Limit: 10_000}.EffectiveLimit())
}
