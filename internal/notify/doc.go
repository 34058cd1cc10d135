// Package notify buffers user-facing output published on the event bus:
// failed-task notifications and alerts. Readers drain copies; nothing in the
// inbox aliases store state.
package notify
