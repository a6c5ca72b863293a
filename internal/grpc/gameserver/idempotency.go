package gameserver

import (
	"sync"
	"time"
)

const (
	idempotencyTTL        = 24 * time.Hour
	idempotencyCleanupLen = 1000
)

// idempotencyEntry stores a cached response with timestamp
type idempotencyEntry struct {
	response  SubmitActionResponse
	createdAt time.Time
}

// IdempotencyManager caches SubmitAction responses of one game by client
// supplied key, so a retried submission is answered without applying the
// action twice.
type IdempotencyManager struct {
	cache map[string]*idempotencyEntry
	mu    sync.RWMutex
	now   func() time.Time
}

// NewIdempotencyManager creates a new idempotency manager
func NewIdempotencyManager() *IdempotencyManager {
	return &IdempotencyManager{
		cache: make(map[string]*idempotencyEntry),
		now:   time.Now,
	}
}

// Check returns the cached response for key, if one is still valid.
func (im *IdempotencyManager) Check(key string) (SubmitActionResponse, bool) {
	if key == "" {
		return SubmitActionResponse{}, false
	}

	im.mu.RLock()
	defer im.mu.RUnlock()

	entry, exists := im.cache[key]
	if !exists || im.now().Sub(entry.createdAt) > idempotencyTTL {
		return SubmitActionResponse{}, false
	}
	return entry.response, true
}

// Store caches resp under key. Empty keys are not cached.
func (im *IdempotencyManager) Store(key string, resp SubmitActionResponse) {
	if key == "" {
		return
	}

	im.mu.Lock()
	defer im.mu.Unlock()

	im.cache[key] = &idempotencyEntry{
		response:  resp,
		createdAt: im.now(),
	}

	if len(im.cache) > idempotencyCleanupLen {
		im.cleanupOldEntriesLocked()
	}
}

// Len returns the number of cached entries, expired or not.
func (im *IdempotencyManager) Len() int {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return len(im.cache)
}

// cleanupOldEntriesLocked removes expired entries. Must be called with mu held.
func (im *IdempotencyManager) cleanupOldEntriesLocked() {
	cutoff := im.now().Add(-idempotencyTTL)
	for key, entry := range im.cache {
		if entry.createdAt.Before(cutoff) {
			delete(im.cache, key)
		}
	}
}
