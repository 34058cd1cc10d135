// Package geo provides the pure coordinate math used by the proximity
// and store layers: great-circle distance and radius bounding boxes.
package geo
