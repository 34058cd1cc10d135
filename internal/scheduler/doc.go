// Package scheduler drives reconciliation from three triggers: a foreground
// heartbeat, the app-active transition, and deferred background invocations.
// Runs are serialized with a weighted semaphore; a trigger that arrives while
// another run is in progress waits its turn instead of being dropped.
//
// After every successful run the scheduler publishes the failed tasks that
// were not yet surfaced as one tasks.failed event, records them as notified,
// and refreshes the proximity regions.
package scheduler
