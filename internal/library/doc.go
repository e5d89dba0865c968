// Package library defines the media index model shared by the database,
// the indexer and the background pipelines: libraries, items, markers,
// failure records, users and media streams, plus the ItemQuery filter used
// to select work from the index.
package library
