/*
Package filesystem provides resilient filesystem operations with automatic retry logic
for NFS stale file handle errors.

# Purpose

Media libraries are frequently mounted over NFS. This package wraps os.Stat,
os.Open, os.ReadDir and os.ReadFile with retry logic for ESTALE (stale file
handle) errors, which occur when NFS-mounted files are accessed during network
issues or server-side changes.

# Usage

	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
	if err != nil {
	    return err
	}

# Retry Behavior

The retry logic implements exponential backoff with the following defaults:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

Only NFS stale file handle errors (ESTALE) trigger retries. All other errors
fail immediately without retry attempts.

# Metrics

Operations are reported to the package Observer, labeled with the volume the
path resolves to (see VolumeResolver). The metrics package provides the
Prometheus implementation; with no observer set nothing is recorded.

# Integration

  - internal/indexer: library walks and .strm shortcut reads
  - internal/subtitle: external subtitle discovery next to each video
  - internal/thumbnail: shortcut target resolution
*/
package filesystem
