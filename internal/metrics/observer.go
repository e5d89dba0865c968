package metrics

import (
	"time"

	"media-assistant/internal/filesystem"
)

type filesystemObserver struct{}

// NewFilesystemObserver returns the filesystem.Observer that feeds the
// Filesystem* metrics. Startup installs it with filesystem.SetObserver.
func NewFilesystemObserver() filesystem.Observer {
	return filesystemObserver{}
}

func (filesystemObserver) ObserveOperation(volume, op string, elapsed time.Duration, retried bool, err error) {
	FilesystemOperationDuration.WithLabelValues(volume, op).Observe(elapsed.Seconds())
	if err != nil {
		FilesystemOperationErrors.WithLabelValues(volume, op).Inc()
	}
	if retried {
		FilesystemRetryDuration.WithLabelValues(op, volume).Observe(elapsed.Seconds())
	}
}

func (filesystemObserver) ObserveRetry(volume, op string, event filesystem.RetryEvent) {
	switch event {
	case filesystem.RetryStale:
		FilesystemStaleErrors.WithLabelValues(op, volume).Inc()
	case filesystem.RetryAttempt:
		FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
	case filesystem.RetrySuccess:
		FilesystemRetrySuccess.WithLabelValues(op, volume).Inc()
	case filesystem.RetryFailure:
		FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
	}
}
