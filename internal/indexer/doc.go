// Package indexer scans library locations into the library index.
//
// Each playable file (video or .strm shortcut) below a location is
// classified into the item hierarchy:
//   - Episodes: files in a season folder ("Season 2", "Specials") or named
//     with an episode pattern ("Show S02E05.mkv", "2x05"). The series and
//     season items are created from the folders; an episode directly in its
//     series folder gets a virtual "Season N" parent.
//   - Movies: files in a movies library.
//   - Videos: everything else.
//   - Extras: files in a conventional extras folder ("Featurettes",
//     "Behind The Scenes", ...), owned by the series, season or movie whose
//     folder holds it.
//
// The indexer operates in multiple modes:
//   - Initial index: Full scan on application startup
//   - Periodic index: Configurable interval-based re-indexing
//   - Change polling: Re-index when a location's modification time moves
//   - Manual trigger: On-demand re-indexing via API
//
// Directories are read in parallel with NFS stale-handle retries. Items that
// no longer exist on disk are removed after a scan that could read every
// location. Playable items new to the index are reported through the
// items-added callback, which drives catch-up processing. Hidden files and
// directories (prefixed with '.') are excluded from indexing.
package indexer
