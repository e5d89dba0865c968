// Package handlers provides the HTTP API of the assistant.
//
// It includes handlers for:
//   - Health, readiness and version
//   - Reading and saving the plugin options, and the published scopes
//   - Per-user favorites
//   - Listing, starting and cancelling tasks
//   - On-demand pipeline runs for a single item
//   - Clearing intro markers, re-indexing and chapter images
package handlers
