// Package proximity decides when a user has reached a task.
//
// Two paths can declare arrival: region-entry callbacks for the watched
// geofences, and direct distance checks against polled locations. Both share
// one radius and one arbitration step, so a task is completed at most once no
// matter which path fires first.
package proximity
