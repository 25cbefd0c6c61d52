package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"unipool/internal/types"
)

// RouteEstimate is the routing engine's answer for a single leg.
type RouteEstimate struct {
	DistanceMeters int
	Duration       time.Duration
}

// RouteService handles interactions with the Google Maps API. Results are
// cached briefly because the matcher asks for the same legs repeatedly while
// a request sits in the broadcast window.
type RouteService struct {
	client *maps.Client
	cache  *legCache
}

// NewRouteService creates a RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client, cache: newLegCache(2 * time.Minute)}, nil
}

// Estimate returns driving distance and duration from origin to destination.
// It assumes driving mode.
func (s *RouteService) Estimate(ctx context.Context, origin, destination types.Point) (RouteEstimate, error) {
	if est, ok := s.cache.get(origin, destination); ok {
		return est, nil
	}

	r := &maps.DirectionsRequest{
		Origin:      latLng(origin),
		Destination: latLng(destination),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return RouteEstimate{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return RouteEstimate{}, fmt.Errorf("no route found")
	}

	leg := routes[0].Legs[0]
	est := RouteEstimate{DistanceMeters: leg.Distance.Meters, Duration: leg.Duration}
	s.cache.put(origin, destination, est)
	return est, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}
