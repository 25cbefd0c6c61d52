// README: Matching service: scores open broadcasts, reranks, offers to drivers.
package matching

import (
	"context"
	"log/slog"
	"time"

	"unipool/internal/config"
	"unipool/internal/maps"
	"unipool/internal/modules/request"
	"unipool/internal/modules/ride"
	"unipool/internal/notify"
	"unipool/internal/observability"
	"unipool/internal/types"
)

const (
	// widenDelay is how long after the initial dispatch an unclaimed request
	// is opened to the full driver pool.
	widenDelay = 30 * time.Second
	// widenExtraCount is how many additional nearby drivers get notified at
	// the widening step.
	widenExtraCount = 10
	// nearbyRadiusKm bounds the GEO search for extra drivers to notify.
	nearbyRadiusKm = 5.0
)

// RequestSource exposes the claimable pending requests to the scheduler.
type RequestSource interface {
	ListOpenBroadcasts(ctx context.Context, now time.Time) ([]*request.Request, error)
}

// RidePool is the candidate-pool slice of the ride store.
type RidePool interface {
	ListOpenBetween(ctx context.Context, from, to time.Time) ([]*ride.Ride, error)
}

// BroadcastStore is the Redis-backed dispatch bookkeeping.
type BroadcastStore interface {
	SetDriverLocation(ctx context.Context, id types.ID, pos types.Point) error
	RemoveDriver(ctx context.Context, id types.ID) error
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
	RecordDispatch(ctx context.Context, requestID types.ID, driverIDs []types.ID) error
	GetDispatchedAt(ctx context.Context, requestID types.ID) (time.Time, bool, error)
	MarkWidened(ctx context.Context, requestID types.ID) error
	IsWidened(ctx context.Context, requestID types.ID) (bool, error)
}

// RouteEstimator refines pickup ETAs via the routing engine. Optional.
type RouteEstimator interface {
	Estimate(ctx context.Context, origin, destination types.Point) (maps.RouteEstimate, error)
}

type Service struct {
	store    BroadcastStore
	requests RequestSource
	rides    RidePool
	reranker *Reranker
	routes   RouteEstimator
	notify   notify.Notifier
	cfg      config.MatchingConfig
	offers   int
	log      *slog.Logger
}

func NewService(store BroadcastStore, requests RequestSource, rides RidePool, reranker *Reranker, routes RouteEstimator, n notify.Notifier, cfg config.MatchingConfig, offerCount int, log *slog.Logger) *Service {
	if n == nil {
		n = notify.Noop{}
	}
	if offerCount <= 0 {
		offerCount = 3
	}
	return &Service{
		store:    store,
		requests: requests,
		rides:    rides,
		reranker: reranker,
		routes:   routes,
		notify:   n,
		cfg:      cfg,
		offers:   offerCount,
		log:      log,
	}
}

// UpdateDriverLocation keeps the GEO index fresh for broadcast widening.
func (s *Service) UpdateDriverLocation(ctx context.Context, driverID types.ID, pos types.Point) error {
	return s.store.SetDriverLocation(ctx, driverID, pos)
}

func (s *Service) RemoveDriver(ctx context.Context, driverID types.ID) error {
	return s.store.RemoveDriver(ctx, driverID)
}

// RunScheduler drives the broadcast matching loop until ctx is cancelled.
func (s *Service) RunScheduler(ctx context.Context) {
	tick := time.Duration(s.cfg.TickSeconds) * time.Second
	if tick <= 0 {
		tick = 3 * time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickBroadcastMatching(ctx)
		}
	}
}

// tickBroadcastMatching dispatches new pending requests to their top-ranked
// drivers and widens stale ones to the full pool.
func (s *Service) tickBroadcastMatching(ctx context.Context) {
	open, err := s.requests.ListOpenBroadcasts(ctx, time.Now())
	if err != nil {
		s.log.Warn("list open broadcasts failed", "err", err)
		return
	}

	for _, req := range open {
		dispatchedAt, dispatched, err := s.store.GetDispatchedAt(ctx, req.ID)
		if err != nil {
			s.log.Warn("dispatch lookup failed", "request_id", req.ID, "err", err)
			continue
		}

		if !dispatched {
			s.dispatch(ctx, req)
			continue
		}

		if time.Since(dispatchedAt) >= widenDelay {
			s.widen(ctx, req)
		}
	}
}

// dispatch runs the full pipeline for one request: geo score, AI rerank,
// offer to the top drivers.
func (s *Service) dispatch(ctx context.Context, req *request.Request) {
	start := time.Now()
	observability.MatchAttemptsTotal.Inc()
	defer func() {
		observability.MatchLatency.Observe(time.Since(start).Seconds())
	}()

	q := RideQuery{
		RequestID: req.ID,
		RiderID:   req.RiderID,
		Pickup:    req.Pickup,
		Dropoff:   req.Dropoff,
		PickupAt:  req.PickupAt,
		Fare:      req.Fare,
	}

	pool, err := s.rides.ListOpenBetween(ctx, req.PickupAt.Add(-s.cfg.TimeWindow), req.PickupAt.Add(s.cfg.TimeWindow))
	if err != nil {
		s.log.Warn("candidate pool query failed", "request_id", req.ID, "err", err)
		return
	}

	proposals := Score(q, pool, s.cfg)
	if len(proposals) == 0 {
		// Nothing eligible yet; mark dispatched so the widening path takes
		// over and drivers can still claim from the public pool.
		if err := s.store.RecordDispatch(ctx, req.ID, nil); err != nil {
			s.log.Warn("record dispatch failed", "request_id", req.ID, "err", err)
		}
		return
	}

	ranked, err := s.reranker.Rerank(ctx, q, proposals)
	if err != nil {
		// Fallback disabled and the provider failed; the geo order still
		// stands for dispatch purposes.
		s.log.Warn("rerank failed without fallback", "request_id", req.ID, "err", err)
	} else {
		proposals = ranked
	}

	s.refineETA(ctx, q, proposals)

	count := s.offers
	if count > len(proposals) {
		count = len(proposals)
	}
	notified := make([]types.ID, 0, count)
	for _, p := range proposals[:count] {
		s.notify.DriverOffer(ctx, p.Ride.DriverID, offerPayload(req, p))
		notified = append(notified, p.Ride.DriverID)
	}

	if err := s.store.RecordDispatch(ctx, req.ID, notified); err != nil {
		s.log.Warn("record dispatch failed", "request_id", req.ID, "err", err)
	}
	s.log.Info("request dispatched", "request_id", req.ID, "candidates", len(proposals), "notified", len(notified))
}

// widen opens an unclaimed request to additional nearby drivers once.
func (s *Service) widen(ctx context.Context, req *request.Request) {
	widened, err := s.store.IsWidened(ctx, req.ID)
	if err != nil {
		s.log.Warn("widened lookup failed", "request_id", req.ID, "err", err)
		return
	}
	if widened {
		return
	}

	nearby, err := s.store.NearbyDrivers(ctx, req.Pickup, nearbyRadiusKm)
	if err != nil {
		s.log.Warn("nearby driver search failed", "request_id", req.ID, "err", err)
		nearby = nil
	}
	if len(nearby) > widenExtraCount {
		nearby = nearby[:widenExtraCount]
	}
	for _, driverID := range nearby {
		s.notify.DriverOffer(ctx, driverID, broadcastPayload(req))
	}

	if err := s.store.MarkWidened(ctx, req.ID); err != nil {
		s.log.Warn("mark widened failed", "request_id", req.ID, "err", err)
		return
	}
	s.log.Info("request widened to public pool", "request_id", req.ID, "extra_notified", len(nearby))
}

// refineETA upgrades the top proposals' pickup estimates with real routing
// results when the routing engine is configured. Best-effort only.
func (s *Service) refineETA(ctx context.Context, q RideQuery, proposals []Proposal) {
	if s.routes == nil {
		return
	}
	depth := s.offers
	if depth > len(proposals) {
		depth = len(proposals)
	}
	for i := range proposals[:depth] {
		est, err := s.routes.Estimate(ctx, proposals[i].Ride.Origin, q.Pickup)
		if err != nil {
			s.log.Debug("route estimate failed", "request_id", q.RequestID, "ride_id", proposals[i].Ride.ID, "err", err)
			continue
		}
		proposals[i].EstimatedPickupAt = proposals[i].Ride.ScheduledAt.Add(est.Duration)
	}
}

func offerPayload(req *request.Request, p Proposal) map[string]any {
	return map[string]any{
		"request_id":       req.ID,
		"rider_id":         req.RiderID,
		"pickup_lat":       req.Pickup.Lat,
		"pickup_lng":       req.Pickup.Lng,
		"dropoff_lat":      req.Dropoff.Lat,
		"dropoff_lng":      req.Dropoff.Lng,
		"pickup_at":        req.PickupAt,
		"fare":             req.Fare.Amount,
		"currency":         req.Fare.Currency,
		"ride_id":          p.Ride.ID,
		"match_score":      p.Score,
		"detour_km":        p.DetourKm,
		"estimated_pickup": p.EstimatedPickupAt,
	}
}

func broadcastPayload(req *request.Request) map[string]any {
	return map[string]any{
		"request_id":  req.ID,
		"pickup_lat":  req.Pickup.Lat,
		"pickup_lng":  req.Pickup.Lng,
		"dropoff_lat": req.Dropoff.Lat,
		"dropoff_lng": req.Dropoff.Lng,
		"pickup_at":   req.PickupAt,
		"fare":        req.Fare.Amount,
		"currency":    req.Fare.Currency,
	}
}
