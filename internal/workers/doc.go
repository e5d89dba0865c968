/*
Package workers sizes the worker pools of the background tasks.

Counts are derived from runtime.GOMAXPROCS, which follows container CPU
limits, rather than runtime.NumCPU, which reports host CPUs:

	workers.ForCPU(8)   // 1 per CPU, max 8
	workers.ForIO(16)   // 2 per CPU, max 16
	workers.ForMixed(12) // 1.5 per CPU, max 12

Task queues are additionally bounded by the configured concurrency budget
(General.MaxConcurrentCount):

	n := workers.ForQueue(workers.CPU, opts.General.MaxConcurrentCount)

# Environment Variable Override

TASK_WORKERS replaces the computed count. The cap still applies, so the
override never exceeds the configured budget.
*/
package workers
