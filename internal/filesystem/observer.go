package filesystem

import (
	"sync/atomic"
	"time"
)

// RetryEvent is a step of the stale-handle retry loop.
type RetryEvent int

const (
	// RetryStale is recorded for every ESTALE result.
	RetryStale RetryEvent = iota
	// RetryAttempt is recorded before each retry sleep.
	RetryAttempt
	// RetrySuccess is recorded when a retried operation succeeds.
	RetrySuccess
	// RetryFailure is recorded when the retries are exhausted.
	RetryFailure
)

func (e RetryEvent) String() string {
	switch e {
	case RetryStale:
		return "stale"
	case RetryAttempt:
		return "attempt"
	case RetrySuccess:
		return "success"
	case RetryFailure:
		return "failure"
	}
	return "unknown"
}

// Observer receives filesystem operation outcomes. The metrics package
// provides the implementation installed at startup.
//
// volume is a VolumeResolver label ("media", "data", "cache"); op is one of
// "stat", "open", "readdir".
type Observer interface {
	// ObserveOperation is called once per operation with its total duration,
	// including retries. retried reports whether any retry happened.
	ObserveOperation(volume, op string, elapsed time.Duration, retried bool, err error)
	ObserveRetry(volume, op string, event RetryEvent)
}

type observerBox struct{ Observer }

var defaultObserver atomic.Pointer[observerBox]

// SetObserver installs the package-level observer and returns the previous
// one. A nil observer disables recording.
func SetObserver(o Observer) Observer {
	var prev *observerBox
	if o == nil {
		prev = defaultObserver.Swap(nil)
	} else {
		prev = defaultObserver.Swap(&observerBox{o})
	}
	if prev == nil {
		return nil
	}
	return prev.Observer
}

func observe() Observer {
	if box := defaultObserver.Load(); box != nil {
		return box.Observer
	}
	return nil
}
