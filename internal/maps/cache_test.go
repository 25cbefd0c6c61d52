package maps

import (
	"testing"
	"time"

	"unipool/internal/types"
)

func TestLegCacheHitAndExpiry(t *testing.T) {
	c := newLegCache(50 * time.Millisecond)
	a := types.Point{Lat: 25.0478, Lng: 121.5170}
	b := types.Point{Lat: 25.0330, Lng: 121.5654}

	if _, ok := c.get(a, b); ok {
		t.Fatal("empty cache must miss")
	}

	want := RouteEstimate{DistanceMeters: 5200, Duration: 12 * time.Minute}
	c.put(a, b, want)

	got, ok := c.get(a, b)
	if !ok || got != want {
		t.Fatalf("cache hit mismatch: %+v ok=%v", got, ok)
	}

	// Reverse direction is a different leg.
	if _, ok := c.get(b, a); ok {
		t.Fatal("reverse leg must not share an entry")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := c.get(a, b); ok {
		t.Fatal("expired entry must miss")
	}
}

func TestLegCacheRoundsNearbyCoordinates(t *testing.T) {
	c := newLegCache(time.Minute)
	a := types.Point{Lat: 25.04781, Lng: 121.51702}
	b := types.Point{Lat: 25.0330, Lng: 121.5654}

	c.put(a, b, RouteEstimate{DistanceMeters: 5200})

	// ~2m away; rounds to the same key.
	nearby := types.Point{Lat: 25.04779, Lng: 121.51701}
	if _, ok := c.get(nearby, b); !ok {
		t.Fatal("nearby origin should share the cached entry")
	}
}
