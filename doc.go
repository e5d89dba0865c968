// Package main is the media-assistant binary.
//
// media-assistant keeps a SQLite index of media libraries and runs the
// background pipelines of a media server assistant over it: media info
// extraction, intro and credits fingerprinting, video thumbnails and external
// subtitle refresh.
//
// # Commands
//
//	media-assistant [serve]        run the HTTP API, the indexer and the task scheduler
//	media-assistant run <task>     run one task to completion and exit
//	media-assistant tasks          list the tasks and their schedules
//	media-assistant clear-intro    clear intro markers of series or seasons
//	media-assistant scope          print the library scope of every pipeline
//
// Every command takes the data directory lock, so one-shot commands fail
// while a server owns the same DATA_DIR. Use the HTTP API instead:
//
//	POST /api/tasks/{name}/run
//	POST /api/intro/clear
//	GET  /api/scope
//
// # Startup
//
//  1. GOMEMLIMIT from MEMORY_LIMIT and MEMORY_RATIO
//  2. Environment configuration and directory checks
//  3. Data directory lock, database and options file
//  4. External tools: ffprobe, ffmpeg and the fingerprint engine
//  5. Options listeners, then the first apply of the options
//  6. Indexer, catch-up dispatcher and task scheduler
//  7. API server and metrics server
//
// SIGINT and SIGTERM stop the servers, cancel running tasks and release
// the lock.
package main
