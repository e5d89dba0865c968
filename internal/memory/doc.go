// Package memory keeps the assistant inside its container memory limit.
//
// [ConfigureFromEnv] derives GOMEMLIMIT from MEMORY_LIMIT, leaving a share
// of the container for the ffmpeg, ffprobe and fingerprint subprocesses:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//	- name: MEMORY_RATIO
//	  value: "0.75"
//
// A [Monitor] samples heap usage and pauses pipeline queues while it is
// above the critical threshold. Queue workers call [Monitor.Wait] before
// each item.
package memory
