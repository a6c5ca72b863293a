package monitoring

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LoopStats describes progress of one named loop at a report
type LoopStats struct {
	Key       string
	Completed int
	SplitRate float64
	TotalRate float64
}

type loopInfo struct {
	start     time.Time
	lastSplit time.Time
	counter   int
}

// LoopReporter logs throughput for named loops every N iterations
type LoopReporter struct {
	mu     sync.Mutex
	loops  map[string]*loopInfo
	logger zerolog.Logger
	now    func() time.Time
}

// NewLoopReporter creates a reporter that logs through logger
func NewLoopReporter(logger zerolog.Logger) *LoopReporter {
	return &LoopReporter{
		loops:  make(map[string]*loopInfo),
		logger: logger.With().Str("component", "loop_reporter").Logger(),
		now:    time.Now,
	}
}

// ReportEvery counts one iteration of key and logs a split every everyN
// iterations. It returns the number of completed iterations and, when a
// report was made, its stats.
func (r *LoopReporter) ReportEvery(key string, everyN int) (int, *LoopStats) {
	r.mu.Lock()
	info, ok := r.loops[key]
	if !ok {
		t := r.now()
		info = &loopInfo{start: t, lastSplit: t}
		r.loops[key] = info
	}
	info.counter++
	completed := info.counter
	if everyN <= 0 || completed%everyN != 0 {
		r.mu.Unlock()
		return completed, nil
	}

	now := r.now()
	stats := &LoopStats{
		Key:       key,
		Completed: completed,
		SplitRate: rate(everyN, now.Sub(info.lastSplit)),
		TotalRate: rate(completed, now.Sub(info.start)),
	}
	info.lastSplit = now
	r.mu.Unlock()

	r.logger.Info().
		Str("loop", key).
		Int("completed", completed).
		Float64("split_rate", stats.SplitRate).
		Float64("total_rate", stats.TotalRate).
		Msg("Loop progress")
	return completed, stats
}

// Reset forgets the counters for key
func (r *LoopReporter) Reset(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.loops, key)
}

func rate(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

// Timer measures one interval
type Timer struct {
	start    time.Time
	interval time.Duration
	now      func() time.Time
}

// StartTimer starts a new timer
func StartTimer() *Timer {
	return &Timer{start: time.Now(), now: time.Now}
}

// Stop records the interval since start and returns it
func (t *Timer) Stop() time.Duration {
	t.interval = t.now().Sub(t.start)
	return t.interval
}

// Interval returns the recorded interval
func (t *Timer) Interval() time.Duration {
	return t.interval
}

// Rate returns items per second over the recorded interval
func (t *Timer) Rate(items int) float64 {
	return rate(items, t.interval)
}
