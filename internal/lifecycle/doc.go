// Package lifecycle implements the task state machine: creation-time
// validation, deadline reconciliation (active -> failed), and the resolution
// flows a user takes on a failed task. Every read-decide-write sequence runs
// inside one store.UnitOfWork, so the engine is safe to call from any number
// of concurrent triggers.
package lifecycle
