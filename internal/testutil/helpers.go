package testutil

import (
	"io"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/turnsim/internal/sim"
)

// NewTestRNG creates a deterministic random number generator for tests
func NewTestRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

// NopLogger returns a no-op logger for tests
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// QuietEnv creates an environment that logs nothing and renders nothing
func QuietEnv(game sim.Game, opts ...sim.Option) *sim.Environment {
	settings := sim.DefaultSettings()
	settings.DisableOutput()
	base := []sim.Option{
		sim.WithLogger(NopLogger()),
		sim.WithSettings(settings),
		sim.WithOutput(io.Discard),
	}
	return sim.New(game, append(base, opts...)...)
}

// AssertPanic asserts that the given function panics
func AssertPanic(t *testing.T, f func(), msgAndArgs ...interface{}) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic but none occurred: %v", msgAndArgs)
		}
	}()
	f()
}

// FindSeed returns the first seed in [0, limit) for which ok accepts the
// generator, so tests can pin down initial draws without hardcoding them.
func FindSeed(t *testing.T, limit int64, ok func(rng *rand.Rand) bool) int64 {
	t.Helper()
	for seed := int64(0); seed < limit; seed++ {
		if ok(NewTestRNG(seed)) {
			return seed
		}
	}
	t.Fatalf("no seed below %d satisfies the condition", limit)
	return -1
}
