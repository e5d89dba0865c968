// Package database provides the SQLite library index for the media
// assistant.
//
// It stores:
//   - Libraries and their locations
//   - Indexed items (series, seasons, episodes, movies, videos and extras)
//   - Users and their favorites
//   - Chapter markers and permanent intro detection failures
//   - Probed media streams, including external subtitles
//   - Task bookkeeping in a key/value metadata table
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization and column migrations.
// QueryItems evaluates a library.ItemQuery in SQL; large id lists are split
// into chunks and merged in path order.
package database
