package memory

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-assistant/internal/metrics"
)

// Config tunes a Monitor.
type Config struct {
	// LimitBytes is the reference limit. Zero uses GOMEMLIMIT.
	LimitBytes int64
	// PauseAt pauses pipeline queues once heap usage reaches this fraction.
	PauseAt float64
	// ResumeAt resumes them once usage drops below this fraction.
	ResumeAt      float64
	CheckInterval time.Duration
}

// DefaultConfig returns the thresholds used by the server.
func DefaultConfig() Config {
	return Config{
		PauseAt:       0.85,
		ResumeAt:      0.7,
		CheckInterval: 5 * time.Second,
	}
}

// Monitor samples heap usage and holds pipeline workers back while it is
// critical. A Monitor without a limit never pauses.
type Monitor struct {
	cfg   Config
	limit int64
	alloc func() uint64

	mu      sync.Mutex
	usage   float64
	paused  bool
	resumed chan struct{}

	stopOnce sync.Once
	stop     chan struct{}
}

// NewMonitor creates a Monitor. Call Start to begin sampling.
func NewMonitor(cfg Config) *Monitor {
	limit := cfg.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < 1<<62 {
			limit = l
		}
	}
	if limit == 0 {
		log.Warn("No memory limit configured, queue backpressure disabled")
	}
	return &Monitor{
		cfg:     cfg,
		limit:   limit,
		alloc:   heapAlloc,
		resumed: make(chan struct{}),
		stop:    make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start samples usage every CheckInterval until Stop.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(m.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.check()
			case <-m.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and releases every waiting worker.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) check() {
	usage := float64(m.alloc()) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = usage
	switch {
	case !m.paused && usage >= m.cfg.PauseAt:
		log.Warn("Memory critical (%.1f%% of limit), pausing pipeline queues", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.cfg.ResumeAt:
		log.Info("Memory recovered (%.1f%% of limit), resuming pipeline queues", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumed)
		m.resumed = make(chan struct{})
	}
}

// Wait blocks while the monitor is paused. It returns ctx.Err() if ctx ends
// first, and nil once usage recovers or the monitor stops.
func (m *Monitor) Wait(ctx context.Context) error {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return nil
	}
	resumed := m.resumed
	m.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-m.stop:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Paused reports whether queues are currently held back.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Usage returns the last sampled heap usage as a fraction of the limit.
func (m *Monitor) Usage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage
}
