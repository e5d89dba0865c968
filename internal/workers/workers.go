package workers

import (
	"os"
	"runtime"
	"strconv"
)

// EnvOverride names the environment variable that overrides the computed
// worker count.
const EnvOverride = "TASK_WORKERS"

// Kind describes how a workload uses the CPU.
type Kind int

// Workload kinds
const (
	// CPU is one worker per CPU: frame extraction, image encoding.
	CPU Kind = iota
	// IO is two workers per CPU: database predicates, sidecar listing.
	IO
	// Mixed is 1.5 workers per CPU: ffprobe runs.
	Mixed
)

func (k Kind) multiplier() float64 {
	switch k {
	case IO:
		return 2.0
	case Mixed:
		return 1.5
	default:
		return 1.0
	}
}

// Count returns the number of workers for a multiplier of the available
// CPUs, capped at limit (0 means no cap). It respects container CPU limits
// via GOMAXPROCS. TASK_WORKERS overrides the computed value.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(EnvOverride); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	// GOMAXPROCS follows the container CPU limit
	available := runtime.GOMAXPROCS(0)

	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(CPU.multiplier(), limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(IO.multiplier(), limit)
}

// ForMixed returns worker count for mixed tasks (1.5 per CPU).
func ForMixed(limit int) int {
	return Count(Mixed.multiplier(), limit)
}

// ForQueue returns the worker count of a task queue of the given kind. The
// configured concurrency budget is the cap; a budget below 1 means 1.
func ForQueue(kind Kind, budget int) int {
	return Count(kind.multiplier(), max(1, budget))
}
