/*
Package selection decides which library items each background pipeline
processes.

A Pipeline describes one pipeline: the libraries it may touch, the scope
options bounding it, its base index query and its readiness predicates.
The Selector builds a queue for a pipeline in one of three modes:

  - ScheduledTask queries the index over the resolved scope, adding the
    expanded favorites when the scope holds the favorites sentinel, or
    using favorites only when the sentinel is the sole entry.
  - CatchUpTask filters the items reported by a library scan against the
    pipeline's published scope, adding favorited items when the catch-up
    scope holds the sentinel. It only runs when the pipeline's catch-up
    task is selected.
  - OnDemand takes a single item as is.

Every mode then drops shortcut items (unless shortcut resolution is
enabled), removes duplicate ids and applies Filter, which evaluates the
pipeline's predicates in parallel while keeping the queue order.
*/
package selection
