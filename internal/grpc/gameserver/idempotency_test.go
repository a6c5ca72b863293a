package gameserver

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyManager(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	im := NewIdempotencyManager()
	im.now = func() time.Time { return clock }

	_, ok := im.Check("k")
	assert.False(t, ok)

	im.Store("k", SubmitActionResponse{Success: true, ActionNumber: 4})
	resp, ok := im.Check("k")
	assert.True(t, ok)
	assert.Equal(t, 4, resp.ActionNumber)

	im.Store("", SubmitActionResponse{Success: true})
	_, ok = im.Check("")
	assert.False(t, ok, "empty keys are never cached")
	assert.Equal(t, 1, im.Len())

	clock = clock.Add(idempotencyTTL + time.Second)
	_, ok = im.Check("k")
	assert.False(t, ok, "entries expire")
}

func TestIdempotencyManager_CleanupWhenLarge(t *testing.T) {
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	im := NewIdempotencyManager()
	im.now = func() time.Time { return clock }

	for i := 0; i < idempotencyCleanupLen; i++ {
		im.Store(fmt.Sprintf("old-%d", i), SubmitActionResponse{Success: true})
	}
	assert.Equal(t, idempotencyCleanupLen, im.Len())

	clock = clock.Add(idempotencyTTL + time.Hour)
	im.Store("fresh", SubmitActionResponse{Success: true})
	assert.Equal(t, 1, im.Len())
}
