// Package location adapts the device location provider: it reacts to
// authorization changes, surfaces one alert per denial cause, and forwards
// coordinate updates to the proximity monitor.
package location
