// Package favorites expands items favorited by any user into the playable
// items the background pipelines work on.
package favorites
