// README: Match proposal types and ranking constants.
package matching

import (
	"time"

	"unipool/internal/modules/ride"
	"unipool/internal/types"
)

const (
	// algorithmVersion tags every decision log entry.
	algorithmVersion = "geo-v2+llm-rank-v1"

	// Rescoring after AI re-ranking: rank 1 gets rerankTopScore and each
	// following rank steps down, floored at rerankMinScore, so consumers
	// always see a monotonically decreasing bounded sequence.
	rerankTopScore  = 100.0
	rerankScoreStep = 5.0
	rerankMinScore  = 50.0

	// summaryDepth is how many candidates the decision log summarizes.
	summaryDepth = 3
)

// RideQuery is the matching pipeline's view of a rider's request.
type RideQuery struct {
	RequestID types.ID
	RiderID   types.ID
	Pickup    types.Point
	Dropoff   types.Point
	PickupAt  time.Time
	Fare      types.Money
}

// Proposal pairs a candidate ride with its computed metrics and score. It is
// ephemeral: created per matching invocation and discarded once the caller
// consumes the ranked list; only the decision recorder keeps a summary.
type Proposal struct {
	Ride *ride.Ride

	PickupDistanceKm  float64
	DropoffDistanceKm float64
	DetourKm          float64
	TimeDelta         time.Duration

	Score float64

	EstimatedPickupAt time.Time
}
