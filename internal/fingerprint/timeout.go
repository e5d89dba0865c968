package fingerprint

import (
	"context"
	"time"

	"media-assistant/internal/logging"
	"media-assistant/internal/metrics"
	"media-assistant/internal/options"
)

// PerWorkerTimeout is the engine timeout granted per concurrent worker.
const PerWorkerTimeout = 10 * time.Minute

// DeriveTimeout returns the engine timeout for a worker budget. Jobs queue
// behind each other inside the engine, so the timeout grows linearly with the
// number of concurrent workers. Budgets below 1 count as 1.
func DeriveTimeout(maxConcurrentWorkers int) time.Duration {
	if maxConcurrentWorkers < 1 {
		maxConcurrentWorkers = 1
	}
	return time.Duration(maxConcurrentWorkers) * PerWorkerTimeout
}

// TimeoutPolicy keeps the engine timeout in step with the worker budget.
type TimeoutPolicy struct {
	engine Engine
}

// NewTimeoutPolicy creates a policy for engine.
func NewTimeoutPolicy(engine Engine) *TimeoutPolicy {
	return &TimeoutPolicy{engine: engine}
}

// Apply writes the timeout derived from maxConcurrentWorkers to the engine.
func (p *TimeoutPolicy) Apply(maxConcurrentWorkers int) time.Duration {
	d := DeriveTimeout(maxConcurrentWorkers)
	if p == nil || p.engine == nil {
		return d
	}
	if p.engine.Timeout() != d {
		logging.Info("Fingerprint engine timeout set to %v (%d workers)", d, maxConcurrentWorkers)
	}
	p.engine.SetTimeout(d)
	metrics.FingerprintTimeoutSeconds.Set(d.Seconds())
	return d
}

// OnOptionsChanged is an options.Listener that reapplies the timeout when the
// worker budget changes.
func (p *TimeoutPolicy) OnOptionsChanged(_ context.Context, prev, next *options.Options) error {
	if prev == nil || prev.General.MaxConcurrentCount != next.General.MaxConcurrentCount {
		p.Apply(next.General.MaxConcurrentCount)
	}
	return nil
}
