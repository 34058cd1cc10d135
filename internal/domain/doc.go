// Package domain contains the core business entities of the wager task
// system: the Task with its monotonic status machine, the domain errors,
// and the catalogue of user-facing alerts. It has no knowledge of storage
// or delivery mechanisms.
package domain
