package exchange

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWeightTrackerStrainedThreshold(t *testing.T) {
	w := NewWeightTracker(1200, time.Minute)
	assert.False(t, w.Strained())

	w.Observe("600")
	assert.False(t, w.Strained())

	w.Observe("1100")
	assert.True(t, w.Strained())

	// Malformed or absent headers leave the last reading in place.
	w.Observe("not-a-number")
	w.Observe("")
	assert.True(t, w.Strained())

	w.Observe("100")
	assert.False(t, w.Strained())
}

func TestWeightTrackerRelaxesAfterWindow(t *testing.T) {
	w := NewWeightTracker(1200, 10*time.Millisecond)
	w.Observe("1150")
	assert.True(t, w.Strained())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, w.Strained())
}
