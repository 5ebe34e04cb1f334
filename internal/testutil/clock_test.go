package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := FixedClock(t0)

	assert.Equal(t, t0, clock())
	assert.Equal(t, t0, clock())
}

func TestSteppingClock(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := SteppingClock(t0, time.Minute)

	assert.Equal(t, t0, clock())
	assert.Equal(t, t0.Add(time.Minute), clock())
	assert.Equal(t, t0.Add(2*time.Minute), clock())
}

func TestSequentialIDs(t *testing.T) {
	newID := SequentialIDs("id-")

	assert.Equal(t, "id-1", newID())
	assert.Equal(t, "id-2", newID())

	// Independent generators start over.
	assert.Equal(t, "v-1", SequentialIDs("v-")())
}
