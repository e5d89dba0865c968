// Package tasks runs the background work of the assistant.
//
// Manager owns named tasks (LibraryScan, IntroSkipClear and one per pipeline). A task runs at
// most once at a time; starting it again while it runs is a no-op that
// returns the id of the current run. Each run gets a uuid, a cancel function
// and a progress fraction, and its completion time is persisted so periodic
// schedules survive restarts.
//
// Jobs binds the selection pipelines to the processors that do the work
// (ffprobe, ffmpeg, subtitle refresh, the fingerprint engine) and provides
// the scheduled, catch-up and on-demand entry points. RunQueue is the
// bounded worker pool every pipeline queue goes through: item failures are
// logged and counted but never abort the queue. When a Gate is set every
// item waits on it first, which is how memory backpressure pauses the queues.
//
// Dispatcher receives the items each library scan added and runs the
// selected catch-up pipelines on them in the background.
package tasks
