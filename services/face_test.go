package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreDistanceMatch(t *testing.T) {
	res := ScoreDistance(0.3)

	assert.True(t, res.IsMatch)
	if assert.NotNil(t, res.Distance) {
		assert.InDelta(t, 0.3, *res.Distance, 1e-9)
	}
	assert.InDelta(t, 70.0, res.Score, 1e-9)
}

func TestScoreDistanceThresholdIsExclusive(t *testing.T) {
	assert.False(t, ScoreDistance(0.5).IsMatch)
	assert.True(t, ScoreDistance(0.4999).IsMatch)
}

func TestScoreDistanceClampsNegativeScores(t *testing.T) {
	res := ScoreDistance(1.4)

	assert.False(t, res.IsMatch)
	assert.Equal(t, 0.0, res.Score)
}

func TestScoreDistanceRoundsTwoDecimals(t *testing.T) {
	res := ScoreDistance(0.33333)
	assert.InDelta(t, 66.67, res.Score, 1e-9)
}
