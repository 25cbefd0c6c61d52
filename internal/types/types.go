// README: Shared identifier and coordinate types used across modules.
package types

// ID is an opaque entity identifier (32-char hex in practice).
type ID string

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64
	Lng float64
}
