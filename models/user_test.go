package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttemptsRollOverResetsOnNewDay(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1)
	a := VerificationAttempts{Count: 3, LastAttempt: &yesterday}

	now := time.Now()
	assert.True(t, a.RollOver(now))
	assert.Equal(t, 0, a.Count)
	assert.False(t, a.Exhausted(now))
}

func TestAttemptsSameDayKeepsCount(t *testing.T) {
	now := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	earlier := now.Add(-1 * time.Hour)
	a := VerificationAttempts{Count: 2, LastAttempt: &earlier}
	assert.False(t, a.RollOver(now))
	assert.Equal(t, 2, a.Count)
	assert.False(t, a.Exhausted(now))

	a.Record(now)
	assert.Equal(t, 3, a.Count)
	assert.True(t, a.Exhausted(now))
}

func TestAttemptsLazyRecordStartsFresh(t *testing.T) {
	var a VerificationAttempts

	now := time.Now()
	assert.False(t, a.SameDay(now))
	assert.False(t, a.Exhausted(now))

	a.Record(now)
	assert.Equal(t, 1, a.Count)
	if assert.NotNil(t, a.LastAttempt) {
		assert.WithinDuration(t, now, *a.LastAttempt, time.Second)
	}
}

func TestAttemptsRecordAfterDayRollover(t *testing.T) {
	yesterday := time.Now().AddDate(0, 0, -1)
	a := VerificationAttempts{Count: 3, LastAttempt: &yesterday}

	a.Record(time.Now())
	assert.Equal(t, 1, a.Count)
}
