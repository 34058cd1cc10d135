// Package events provides the in-process event bus that connects the
// lifecycle, proximity and scheduler components to their observers.
//
// The primary components are:
// - Event: a typed, JSON-encoded notification with a unique ID
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
//
// Event types emitted by the core are tasks.failed, task.completed,
// wager.forfeited and alert.raised.
package events
