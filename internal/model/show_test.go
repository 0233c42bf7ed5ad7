package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShowHasStarted(t *testing.T) {
	start := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	s := &Show{ID: 7, StartsAt: start}

	assert.False(t, s.HasStarted(start.Add(-time.Second)))
	// The start instant itself counts as started: reservations are only
	// valid strictly before the show begins.
	assert.True(t, s.HasStarted(start))
	assert.True(t, s.HasStarted(start.Add(time.Second)))
}
