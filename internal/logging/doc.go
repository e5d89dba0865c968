// Package logging provides a simple leveled logging interface for the
// media assistant service.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//
// The level comes from DEBUG or LOG_LEVEL and can be overridden with
// SetLevel, which the --log-level flag does. Background pipelines log
// through a component Logger obtained from For, so every line names the
// task that produced it:
//
//	log := logging.For("IntroFingerprintExtract")
//	log.Info("Number of items: %d", n)
//	log.Progress(i, n, "completed - %s", item.Path)
package logging
