// README: Geo scorer unit tests (pure function, no external dependencies).
package matching

import (
	"fmt"
	"testing"
	"time"

	"unipool/internal/config"
	"unipool/internal/modules/ride"
	"unipool/internal/types"
)

func testMatchingConfig() config.MatchingConfig {
	return config.MatchingConfig{
		TimeWindow:      30 * time.Minute,
		MaxPickupKm:     3.0,
		MaxDetourKm:     5.0,
		WeightProximity: 40,
		WeightTime:      25,
		WeightRating:    15,
		WeightDetour:    20,
		TopN:            10,
	}
}

// Taipei Main Station area; ~1km of latitude is ~0.009 degrees.
var (
	stationPt = types.Point{Lat: 25.0478, Lng: 121.5170}
	xinyiPt   = types.Point{Lat: 25.0330, Lng: 121.5654}
)

func testQuery(at time.Time) RideQuery {
	return RideQuery{
		RequestID: "req1",
		RiderID:   "rider1",
		Pickup:    stationPt,
		Dropoff:   xinyiPt,
		PickupAt:  at,
		Fare:      types.Money{Amount: 500, Currency: "USD"},
	}
}

func makeRide(id string, originOffsetKm float64, schedDelta time.Duration, rating float64, at time.Time) *ride.Ride {
	return &ride.Ride{
		ID:           types.ID(id),
		DriverID:     types.ID("d_" + id),
		DriverRating: rating,
		Origin:       types.Point{Lat: stationPt.Lat + originOffsetKm*0.009, Lng: stationPt.Lng},
		Destination:  xinyiPt,
		ScheduledAt:  at.Add(schedDelta),
		SeatsTotal:   4,
		SeatsFree:    2,
		Status:       ride.StatusOpen,
	}
}

func TestScoreFiltersAndRanks(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cfg := testMatchingConfig()

	near := makeRide("near", 0.2, 0, 4.8, at)
	far := makeRide("far", 2.5, 10*time.Minute, 4.0, at)
	tooFar := makeRide("toofar", 8.0, 0, 5.0, at)
	late := makeRide("late", 0.2, 2*time.Hour, 5.0, at)
	full := makeRide("full", 0.2, 0, 5.0, at)
	full.SeatsFree = 0
	departed := makeRide("departed", 0.2, 0, 5.0, at)
	departed.Status = ride.StatusDeparted

	got := Score(testQuery(at), []*ride.Ride{far, tooFar, late, full, departed, near}, cfg)

	if len(got) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(got))
	}
	if got[0].Ride.ID != "near" || got[1].Ride.ID != "far" {
		t.Fatalf("wrong order: %s, %s", got[0].Ride.ID, got[1].Ride.ID)
	}
	if got[0].Score <= got[1].Score {
		t.Fatalf("scores not descending: %.2f then %.2f", got[0].Score, got[1].Score)
	}
	for _, p := range got {
		if p.Score < 0 || p.Score > 100 {
			t.Fatalf("score out of bounds: %.2f", p.Score)
		}
	}
}

func TestScoreEmptyPool(t *testing.T) {
	at := time.Now()
	got := Score(testQuery(at), nil, testMatchingConfig())
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestScoreDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cfg := testMatchingConfig()
	pool := []*ride.Ride{
		makeRide("a", 0.5, 5*time.Minute, 4.5, at),
		makeRide("b", 1.0, -5*time.Minute, 4.9, at),
		makeRide("c", 0.2, 0, 3.8, at),
	}

	first := Score(testQuery(at), pool, cfg)
	for i := 0; i < 5; i++ {
		again := Score(testQuery(at), pool, cfg)
		if len(again) != len(first) {
			t.Fatalf("run %d: length changed", i)
		}
		for j := range first {
			if again[j].Ride.ID != first[j].Ride.ID {
				t.Fatalf("run %d: order changed at %d", i, j)
			}
		}
	}
}

func TestScoreTieBreakByDriverID(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// Identical geometry, rating and schedule produce identical scores.
	a := makeRide("a", 0.3, 0, 4.5, at)
	b := makeRide("b", 0.3, 0, 4.5, at)

	got := Score(testQuery(at), []*ride.Ride{b, a}, testMatchingConfig())
	if len(got) != 2 {
		t.Fatalf("expected 2 proposals, got %d", len(got))
	}
	if got[0].Ride.DriverID != "d_a" {
		t.Fatalf("tie not broken by driver id: got %s first", got[0].Ride.DriverID)
	}
}

func TestScoreTruncatesToTopN(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cfg := testMatchingConfig()
	cfg.TopN = 3

	pool := make([]*ride.Ride, 0, 8)
	for i := 0; i < 8; i++ {
		pool = append(pool, makeRide(fmt.Sprintf("r%d", i), float64(i)*0.2, 0, 4.0, at))
	}

	got := Score(testQuery(at), pool, cfg)
	if len(got) != 3 {
		t.Fatalf("expected TopN=3 proposals, got %d", len(got))
	}
}

func TestScoreRespectsDriverDetourTolerance(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	cfg := testMatchingConfig()

	strict := makeRide("strict", 1.5, 0, 4.5, at)
	strict.MaxDetourMin = 1 // minutes; even a small detour busts this

	got := Score(testQuery(at), []*ride.Ride{strict}, cfg)
	if len(got) != 0 {
		t.Fatalf("expected strict-detour ride filtered, got %d proposals", len(got))
	}
}

func TestDetourEstimateFloorsAtZero(t *testing.T) {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	// Pickup and dropoff exactly on the ride's endpoints: via distance equals
	// the direct leg, so the detour must be zero, never negative.
	cand := &ride.Ride{Origin: stationPt, Destination: xinyiPt}
	q := testQuery(at)
	q.Pickup = stationPt
	q.Dropoff = xinyiPt

	if d := detourEstimateKm(cand, q); d != 0 {
		t.Fatalf("expected zero detour, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Taipei Main Station to Taipei 101 is roughly 5 km.
	d := haversineKm(types.Point{Lat: 25.0478, Lng: 121.5170}, types.Point{Lat: 25.0330, Lng: 121.5654})
	if d < 4.0 || d > 6.5 {
		t.Fatalf("unexpected distance: %f km", d)
	}
}
