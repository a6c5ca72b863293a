package monitoring

import (
	"maps"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultAlertCooldown = 5 * time.Minute

// GoroutineMetrics contains goroutine statistics
type GoroutineMetrics struct {
	Current         int            `json:"current"`
	Baseline        int            `json:"baseline"`
	Peak            int            `json:"peak"`
	Growth          int            `json:"growth"`
	ComponentCounts map[string]int `json:"component_counts"`
}

// GoroutineMonitor samples the goroutine count on an interval and warns when
// it passes a threshold. The game manager registers its hosted session and
// watcher counts so a leak can be traced to a component.
type GoroutineMonitor struct {
	interval  time.Duration
	threshold int
	cooldown  time.Duration
	logger    zerolog.Logger

	mu         sync.RWMutex
	metrics    GoroutineMetrics
	lastAlert  time.Time
	components map[string]int

	stop     chan struct{}
	stopOnce sync.Once
}

func NewGoroutineMonitor(interval time.Duration, threshold int, logger zerolog.Logger) *GoroutineMonitor {
	n := runtime.NumGoroutine()
	return &GoroutineMonitor{
		interval:   interval,
		threshold:  threshold,
		cooldown:   defaultAlertCooldown,
		logger:     logger.With().Str("component", "goroutine_monitor").Logger(),
		metrics:    GoroutineMetrics{Current: n, Baseline: n, Peak: n},
		components: make(map[string]int),
		stop:       make(chan struct{}),
	}
}

// Start samples in a background goroutine until Stop.
func (gm *GoroutineMonitor) Start() {
	gm.logger.Info().
		Int("baseline", gm.metrics.Baseline).
		Dur("interval", gm.interval).
		Msg("Started goroutine monitoring")

	go func() {
		ticker := time.NewTicker(gm.interval)
		defer ticker.Stop()
		for {
			select {
			case <-gm.stop:
				return
			case <-ticker.C:
				gm.Check()
			}
		}
	}()
}

// Stop is idempotent.
func (gm *GoroutineMonitor) Stop() {
	gm.stopOnce.Do(func() { close(gm.stop) })
}

// Check takes a sample now and logs an alert when the count is over the
// threshold and the cooldown has passed.
func (gm *GoroutineMonitor) Check() {
	n := runtime.NumGoroutine()
	now := time.Now()

	gm.mu.Lock()
	gm.metrics.Current = n
	gm.metrics.Peak = max(gm.metrics.Peak, n)
	gm.metrics.Growth = n - gm.metrics.Baseline
	alert := n > gm.threshold && now.Sub(gm.lastAlert) > gm.cooldown
	if alert {
		gm.lastAlert = now
	}
	sample := gm.snapshotLocked()
	gm.mu.Unlock()

	gm.logger.Debug().
		Int("current", sample.Current).
		Int("growth", sample.Growth).
		Msg("Goroutine metrics")

	if !alert {
		return
	}
	ev := gm.logger.Warn().
		Int("current", sample.Current).
		Int("threshold", gm.threshold)
	for name, count := range sample.ComponentCounts {
		ev = ev.Int("component_"+name, count)
	}
	ev.Msg("High goroutine count detected - possible leak")
}

// RegisterComponent records the latest count reported by a component.
func (gm *GoroutineMonitor) RegisterComponent(name string, count int) {
	gm.mu.Lock()
	gm.components[name] = count
	gm.mu.Unlock()
}

func (gm *GoroutineMonitor) GetMetrics() GoroutineMetrics {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return gm.snapshotLocked()
}

func (gm *GoroutineMonitor) snapshotLocked() GoroutineMetrics {
	m := gm.metrics
	m.ComponentCounts = maps.Clone(gm.components)
	return m
}
