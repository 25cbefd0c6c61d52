// README: Pure geo scoring: filter, proximity, detour approximation, weighted score.
package matching

import (
	"math"
	"sort"
	"time"

	"unipool/internal/config"
	"unipool/internal/modules/ride"
	"unipool/internal/types"
)

const earthRadiusKm = 6371.0

// avgSpeedKmh converts detour distance into a coarse time estimate when no
// routing result is available.
const avgSpeedKmh = 30.0

// Score filters and ranks the candidate pool for a request. It is pure and
// deterministic: identical inputs always yield the identical ordered list.
// An empty surviving pool returns an empty slice, never an error.
func Score(q RideQuery, pool []*ride.Ride, cfg config.MatchingConfig) []Proposal {
	proposals := make([]Proposal, 0, len(pool))

	for _, cand := range pool {
		if cand.Status != ride.StatusOpen || cand.SeatsFree < 1 {
			continue
		}
		delta := cand.ScheduledAt.Sub(q.PickupAt)
		if absDuration(delta) > cfg.TimeWindow {
			continue
		}

		pickupKm := haversineKm(cand.Origin, q.Pickup)
		if pickupKm > cfg.MaxPickupKm {
			continue
		}
		dropoffKm := haversineKm(cand.Destination, q.Dropoff)

		// Corridor containment is a coarse bounding-box approximation of
		// the real route corridor, pending integration with the routing
		// engine. Kept deliberately simple; do not mistake it for
		// geometry-accurate corridor math.
		if !withinCorridor(cand.Origin, cand.Destination, q.Pickup, q.Dropoff, cfg.MaxPickupKm) {
			continue
		}

		detourKm := detourEstimateKm(cand, q)
		if detourKm > cfg.MaxDetourKm {
			continue
		}
		if cand.MaxDetourMin > 0 {
			detourMin := detourKm / avgSpeedKmh * 60
			if detourMin > float64(cand.MaxDetourMin) {
				continue
			}
		}

		proposals = append(proposals, Proposal{
			Ride:              cand,
			PickupDistanceKm:  pickupKm,
			DropoffDistanceKm: dropoffKm,
			DetourKm:          detourKm,
			TimeDelta:         delta,
			Score:             weightedScore(pickupKm, delta, cand.DriverRating, detourKm, cfg),
			EstimatedPickupAt: cand.ScheduledAt.Add(travelTime(pickupKm)),
		})
	}

	// Deterministic order: score desc, then earlier schedule, then lower
	// driver id. Equal inputs must never reorder between runs.
	sort.SliceStable(proposals, func(i, j int) bool {
		a, b := proposals[i], proposals[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Ride.ScheduledAt.Equal(b.Ride.ScheduledAt) {
			return a.Ride.ScheduledAt.Before(b.Ride.ScheduledAt)
		}
		return a.Ride.DriverID < b.Ride.DriverID
	})

	if len(proposals) > cfg.TopN {
		proposals = proposals[:cfg.TopN]
	}
	return proposals
}

// weightedScore combines the four component scores. Weights sum to 100
// (validated at config load) so the result lands in [0,100].
func weightedScore(pickupKm float64, delta time.Duration, rating, detourKm float64, cfg config.MatchingConfig) float64 {
	proximity := clamp01(1-pickupKm/cfg.MaxPickupKm) * cfg.WeightProximity
	timeAlign := clamp01(1-absDuration(delta).Seconds()/cfg.TimeWindow.Seconds()) * cfg.WeightTime
	ratingScore := clamp01(rating/5.0) * cfg.WeightRating
	detourScore := clamp01(1-detourKm/cfg.MaxDetourKm) * cfg.WeightDetour
	return proximity + timeAlign + ratingScore + detourScore
}

// detourEstimateKm approximates the extra distance the driver travels to
// serve the new pickup and dropoff: legs via both stops minus the original
// direct leg. Floored at zero for stops that sit on the way.
func detourEstimateKm(cand *ride.Ride, q RideQuery) float64 {
	direct := haversineKm(cand.Origin, cand.Destination)
	via := haversineKm(cand.Origin, q.Pickup) +
		haversineKm(q.Pickup, q.Dropoff) +
		haversineKm(q.Dropoff, cand.Destination)
	if via < direct {
		return 0
	}
	return via - direct
}

// withinCorridor checks both stops fall inside the ride's bounding box padded
// by marginKm. Coarse approximation of route-corridor containment.
func withinCorridor(origin, dest, pickup, dropoff types.Point, marginKm float64) bool {
	latMargin := marginKm / 110.574
	lngMargin := marginKm / (111.320 * math.Cos(degToRad((origin.Lat+dest.Lat)/2)))
	if lngMargin < 0 {
		lngMargin = -lngMargin
	}

	minLat := math.Min(origin.Lat, dest.Lat) - latMargin
	maxLat := math.Max(origin.Lat, dest.Lat) + latMargin
	minLng := math.Min(origin.Lng, dest.Lng) - lngMargin
	maxLng := math.Max(origin.Lng, dest.Lng) + lngMargin

	return inBox(pickup, minLat, maxLat, minLng, maxLng) &&
		inBox(dropoff, minLat, maxLat, minLng, maxLng)
}

func inBox(p types.Point, minLat, maxLat, minLng, maxLng float64) bool {
	return p.Lat >= minLat && p.Lat <= maxLat && p.Lng >= minLng && p.Lng <= maxLng
}

// haversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func haversineKm(a, b types.Point) float64 {
	dLat := degToRad(b.Lat - a.Lat)
	dLng := degToRad(b.Lng - a.Lng)

	rLat1 := degToRad(a.Lat)
	rLat2 := degToRad(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

func travelTime(km float64) time.Duration {
	return time.Duration(km / avgSpeedKmh * float64(time.Hour))
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
