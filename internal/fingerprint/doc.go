// Package fingerprint drives the delegated audio fingerprint engine that
// detects intro and credits markers.
//
// Work is organized by season: the engine compares the fingerprints of every
// episode in a season once (ComputeSeasonContext) and derives each episode's
// markers from that shared context. Sequencer.RunSeasonSequence runs this for
// one season; Runner.RunSeasons groups a selected queue of episodes by season
// and runs seasons concurrently up to the configured worker budget.
//
// The engine applies one global timeout to every invocation. Because jobs
// queue inside the engine, TimeoutPolicy scales it with the worker budget
// (DeriveTimeout: 10 minutes per worker) and reapplies it whenever the budget
// changes.
//
// ExecEngine talks to an external executable (FINGERPRINT_ENGINE) over a
// JSON stdin/stdout protocol. When it cannot be initialized the fingerprint
// pipeline reports itself unavailable and selects no work.
package fingerprint
