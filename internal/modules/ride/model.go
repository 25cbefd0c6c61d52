// README: Driver ride offers (the candidate pool) and seat accounting.
package ride

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"unipool/internal/types"
)

type Status string

const (
	// StatusOpen rides are visible to matching and can take more riders.
	StatusOpen Status = "open"
	// StatusFull rides keep serving confirmed riders but leave the pool.
	StatusFull      Status = "full"
	StatusDeparted  Status = "departed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var ErrNotFound = errors.New("ride not found")

// Ride is a driver's scheduled or in-progress ride offer. Matching treats it
// as read-only; only seat accounting mutates it, under a conditional update.
type Ride struct {
	ID           types.ID
	DriverID     types.ID
	DriverRating float64 // 0..5
	Vehicle      string
	Origin       types.Point
	Destination  types.Point
	ScheduledAt  time.Time
	SeatsTotal   int
	SeatsFree    int
	// MaxDetourMin is the driver's personal detour tolerance.
	MaxDetourMin int
	Status       Status
	CreatedAt    time.Time
}

// NewID mints a ride identifier. Callers set it before Create.
func NewID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
