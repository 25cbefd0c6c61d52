// README: MatchRequest aggregate, mode/status definitions and the transition table.
package request

import (
	"time"

	"unipool/internal/types"
)

type Mode string

const (
	// ModeAIBooking asks the system to discover a driver via scoring and
	// AI ranking; the request enters a broadcast window.
	ModeAIBooking Mode = "AI_BOOKING"
	// ModeJoinRide targets one specific existing ride directly.
	ModeJoinRide Mode = "JOIN_RIDE"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// Request is a rider's match request. Status moves monotonically through the
// transition table below; at most one accepted ride is referenced at a time.
type Request struct {
	ID            types.ID
	RiderID       types.ID
	Mode          Mode
	Status        Status
	StatusVersion int

	Pickup   types.Point
	Dropoff  types.Point
	PickupAt time.Time

	QuoteID     types.ID
	Fare        types.Money
	QuoteExpiry time.Time

	// RideID/DriverID are set on JOIN_RIDE creation and on accept.
	RideID   *types.ID
	DriverID *types.ID

	// HoldRef is the wallet engine's hold reference, empty until funds are held.
	HoldRef string

	// BroadcastUntil bounds the claim window for AI_BOOKING requests.
	BroadcastUntil time.Time

	CreatedAt    time.Time
	ConfirmedAt  *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
}

type Event struct {
	ID         int64
	RequestID  types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the request state flow as code. Completed,
// cancelled, rejected and expired are terminal.
var AllowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected, StatusExpired, StatusCancelled},
	StatusConfirmed: {StatusOngoing, StatusCancelled},
	StatusOngoing:   {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// BroadcastExpired reports whether the claim window or the quote validity has
// lapsed. Only meaningful for pending requests.
func (r *Request) BroadcastExpired(now time.Time) bool {
	if r.Mode == ModeAIBooking && !r.BroadcastUntil.IsZero() && now.After(r.BroadcastUntil) {
		return true
	}
	return !r.QuoteExpiry.IsZero() && now.After(r.QuoteExpiry)
}
