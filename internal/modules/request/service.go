// README: Request lifecycle manager: creation, claim race, cancellation, expiry, completion.
package request

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"unipool/internal/config"
	"unipool/internal/modules/pricing"
	"unipool/internal/modules/ride"
	"unipool/internal/notify"
	"unipool/internal/observability"
	"unipool/internal/types"
	"unipool/internal/wallet"
)

var (
	ErrValidation   = errors.New("invalid request input")
	ErrNotFound     = errors.New("request not found")
	ErrConflict     = errors.New("request state conflict")
	ErrInvalidState = errors.New("invalid state transition")
)

// RideDirectory is the slice of the ride store the lifecycle manager needs:
// lookups plus atomic seat accounting.
type RideDirectory interface {
	Get(ctx context.Context, id types.ID) (*ride.Ride, error)
	ReserveSeat(ctx context.Context, id types.ID) (bool, error)
	ReleaseSeat(ctx context.Context, id types.ID) error
}

// QuoteLookup resolves a fare quote reference.
type QuoteLookup interface {
	Lookup(ctx context.Context, id types.ID) (*pricing.Quote, error)
}

type Service struct {
	store  Store
	rides  RideDirectory
	quotes QuoteLookup
	wallet wallet.Engine
	notify notify.Notifier
	cfg    config.BroadcastConfig
	log    *slog.Logger
}

func NewService(store Store, rides RideDirectory, quotes QuoteLookup, w wallet.Engine, n notify.Notifier, cfg config.BroadcastConfig, log *slog.Logger) *Service {
	if n == nil {
		n = notify.Noop{}
	}
	return &Service{store: store, rides: rides, quotes: quotes, wallet: w, notify: n, cfg: cfg, log: log}
}

type CreateBookingCommand struct {
	RiderID  types.ID
	Pickup   types.Point
	Dropoff  types.Point
	PickupAt time.Time
	QuoteID  types.ID
}

type CreateJoinCommand struct {
	RiderID  types.ID
	RideID   types.ID
	Pickup   types.Point
	Dropoff  types.Point
	PickupAt time.Time
	QuoteID  types.ID
}

type AcceptCommand struct {
	RequestID types.ID
	DriverID  types.ID
	// RideID is the ride the driver claims the request onto. Required for
	// AI_BOOKING; for JOIN_RIDE it must match the targeted ride when set.
	RideID types.ID
}

type RejectCommand struct {
	RequestID types.ID
	DriverID  types.ID
	Reason    string
}

type CancelCommand struct {
	RequestID types.ID
	ActorType string // "rider", "driver" or "admin"
	ActorID   types.ID
	Reason    string
}

type StartCommand struct {
	RequestID types.ID
	DriverID  types.ID
}

type CompleteCommand struct {
	RequestID types.ID
	DriverID  types.ID
}

// CreateBooking opens an AI_BOOKING request. The quote must still be valid;
// the request becomes claimable by any eligible driver until the broadcast
// window closes.
func (s *Service) CreateBooking(ctx context.Context, cmd CreateBookingCommand) (*Request, error) {
	if cmd.RiderID == "" || cmd.QuoteID == "" {
		return nil, ErrValidation
	}
	q, err := s.resolveQuote(ctx, cmd.QuoteID, cmd.RiderID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	r := &Request{
		ID:             newID(),
		RiderID:        cmd.RiderID,
		Mode:           ModeAIBooking,
		Status:         StatusPending,
		Pickup:         cmd.Pickup,
		Dropoff:        cmd.Dropoff,
		PickupAt:       cmd.PickupAt,
		QuoteID:        q.ID,
		Fare:           q.Fare,
		QuoteExpiry:    q.ExpiresAt,
		BroadcastUntil: now.Add(s.cfg.Window),
		CreatedAt:      now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, r.ID, StatusNone, StatusPending, "rider", &cmd.RiderID)
	return r, nil
}

// CreateJoin opens a JOIN_RIDE request against one specific ride. Seat
// availability is checked up front and the fare is held immediately; the seat
// itself is only decremented when the driver accepts.
func (s *Service) CreateJoin(ctx context.Context, cmd CreateJoinCommand) (*Request, error) {
	if cmd.RiderID == "" || cmd.RideID == "" || cmd.QuoteID == "" {
		return nil, ErrValidation
	}
	q, err := s.resolveQuote(ctx, cmd.QuoteID, cmd.RiderID)
	if err != nil {
		return nil, err
	}

	target, err := s.rides.Get(ctx, cmd.RideID)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if target.Status != ride.StatusOpen || target.SeatsFree < 1 {
		return nil, ErrConflict
	}

	now := time.Now()
	r := &Request{
		ID:          newID(),
		RiderID:     cmd.RiderID,
		Mode:        ModeJoinRide,
		Status:      StatusPending,
		Pickup:      cmd.Pickup,
		Dropoff:     cmd.Dropoff,
		PickupAt:    cmd.PickupAt,
		QuoteID:     q.ID,
		Fare:        q.Fare,
		QuoteExpiry: q.ExpiresAt,
		RideID:      &target.ID,
		CreatedAt:   now,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	holdRef, err := s.wallet.Hold(ctx, r.ID, r.RiderID, r.Fare, idemKey(r.ID, "hold"))
	if err != nil {
		return nil, fmt.Errorf("hold funds: %w", err)
	}
	r.HoldRef = holdRef
	if err := s.store.SetHoldRef(ctx, r.ID, holdRef); err != nil {
		return nil, err
	}

	s.appendEvent(ctx, r.ID, StatusNone, StatusPending, "rider", &cmd.RiderID)
	s.notify.DriverOffer(ctx, target.DriverID, joinOfferPayload(r))
	return r, nil
}

// Accept claims a pending request for a driver. Exactly one concurrent accept
// can win: the seat is reserved first under a conditional decrement, then the
// status CAS fences out every other acceptor; a lost CAS returns the seat.
// Re-accepting by the winning driver is idempotent.
func (s *Service) Accept(ctx context.Context, cmd AcceptCommand) (*Request, error) {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return nil, err
	}

	if r.Status == StatusConfirmed && r.DriverID != nil && *r.DriverID == cmd.DriverID {
		// Idempotent repeat of a won claim. Make sure the hold exists in
		// case the first call failed between the CAS and the wallet.
		if err := s.ensureHold(ctx, r); err != nil {
			return nil, err
		}
		return r, nil
	}
	if r.Status != StatusPending {
		if r.Status == StatusConfirmed {
			return nil, ErrConflict
		}
		return nil, ErrInvalidState
	}
	if r.BroadcastExpired(time.Now()) {
		s.expireNow(ctx, r)
		return nil, ErrInvalidState
	}

	rideID, err := s.claimTarget(r, cmd)
	if err != nil {
		return nil, err
	}
	target, err := s.rides.Get(ctx, rideID)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if target.DriverID != cmd.DriverID {
		return nil, ErrValidation
	}

	ok, err := s.rides.ReserveSeat(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	ok, err = s.store.UpdateStatus(ctx, r.ID, StatusPending, StatusConfirmed, r.StatusVersion, &cmd.DriverID, &rideID)
	if err != nil {
		_ = s.rides.ReleaseSeat(ctx, rideID)
		return nil, err
	}
	if !ok {
		// Another driver's accept, a cancel or the expiry sweep won the race.
		_ = s.rides.ReleaseSeat(ctx, rideID)
		return nil, ErrConflict
	}
	observability.RequestTransitionsTotal.WithLabelValues(string(StatusConfirmed)).Inc()

	r.Status = StatusConfirmed
	r.StatusVersion++
	r.DriverID = &cmd.DriverID
	r.RideID = &rideID

	if err := s.ensureHold(ctx, r); err != nil {
		// Status is already confirmed; the caller retries Accept with the
		// same identifiers and the idempotent branch re-attempts the hold.
		return nil, err
	}

	s.appendEvent(ctx, r.ID, StatusPending, StatusConfirmed, "driver", &cmd.DriverID)
	s.notify.RiderStatus(ctx, r.RiderID, statusPayload(r))
	return r, nil
}

// Reject lets the targeted driver decline a pending JOIN_RIDE request. A
// pending AI_BOOKING has no attached ride yet, so there is nothing to reject.
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.RideID == nil {
		return ErrInvalidState
	}
	if r.Status != StatusPending {
		return ErrInvalidState
	}
	target, err := s.rides.Get(ctx, *r.RideID)
	if err != nil {
		if errors.Is(err, ride.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if target.DriverID != cmd.DriverID {
		return ErrValidation
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusPending, StatusRejected, r.StatusVersion, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	observability.RequestTransitionsTotal.WithLabelValues(string(StatusRejected)).Inc()

	s.releaseHold(ctx, r)
	s.appendEvent(ctx, r.ID, StatusPending, StatusRejected, "driver", &cmd.DriverID)
	s.notify.RiderStatus(ctx, r.RiderID, statusUpdate(r.ID, StatusRejected, cmd.Reason))
	return nil
}

// Cancel aborts a pending or confirmed request before pickup. Only the owning
// rider, the assigned driver or an admin may cancel.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	switch cmd.ActorType {
	case "rider":
		if cmd.ActorID != r.RiderID {
			return ErrValidation
		}
	case "driver":
		if r.DriverID == nil || *r.DriverID != cmd.ActorID {
			return ErrValidation
		}
	case "admin":
	default:
		return ErrValidation
	}
	if !CanTransition(r.Status, StatusCancelled) {
		return ErrInvalidState
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, StatusCancelled, r.StatusVersion, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	observability.RequestTransitionsTotal.WithLabelValues(string(StatusCancelled)).Inc()

	if r.Status == StatusConfirmed && r.RideID != nil {
		if err := s.rides.ReleaseSeat(ctx, *r.RideID); err != nil {
			s.log.Warn("seat release failed on cancel", "request_id", r.ID, "ride_id", *r.RideID, "err", err)
		}
	}
	s.releaseHold(ctx, r)
	s.appendEvent(ctx, r.ID, r.Status, StatusCancelled, cmd.ActorType, &cmd.ActorID)
	s.notify.RiderStatus(ctx, r.RiderID, statusUpdate(r.ID, StatusCancelled, cmd.Reason))
	if r.DriverID != nil {
		s.notify.DriverOffer(ctx, *r.DriverID, statusUpdate(r.ID, StatusCancelled, cmd.Reason))
	}
	return nil
}

// Start marks the rider as picked up.
func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.DriverID == nil || *r.DriverID != cmd.DriverID {
		return ErrValidation
	}
	if !CanTransition(r.Status, StatusOngoing) {
		return ErrInvalidState
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusConfirmed, StatusOngoing, r.StatusVersion, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	observability.RequestTransitionsTotal.WithLabelValues(string(StatusOngoing)).Inc()

	s.appendEvent(ctx, r.ID, StatusConfirmed, StatusOngoing, "driver", &cmd.DriverID)
	s.notify.RiderStatus(ctx, r.RiderID, statusUpdate(r.ID, StatusOngoing, ""))
	return nil
}

// Complete finishes the request and captures the held funds.
func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	r, err := s.store.Get(ctx, cmd.RequestID)
	if err != nil {
		return err
	}
	if r.DriverID == nil || *r.DriverID != cmd.DriverID {
		return ErrValidation
	}
	if r.Status == StatusCompleted {
		// Idempotent repeat; the capture key makes the wallet call safe.
		return s.confirmFunds(ctx, r)
	}
	if !CanTransition(r.Status, StatusCompleted) {
		return ErrInvalidState
	}

	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusOngoing, StatusCompleted, r.StatusVersion, nil, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	observability.RequestTransitionsTotal.WithLabelValues(string(StatusCompleted)).Inc()

	if err := s.confirmFunds(ctx, r); err != nil {
		return err
	}
	s.appendEvent(ctx, r.ID, StatusOngoing, StatusCompleted, "driver", &cmd.DriverID)
	s.notify.RiderStatus(ctx, r.RiderID, statusUpdate(r.ID, StatusCompleted, ""))
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Request, error) {
	r, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Lazy expiry check so a lapsed request never reads as claimable.
	if r.Status == StatusPending && r.BroadcastExpired(time.Now()) {
		s.expireNow(ctx, r)
		return s.store.Get(ctx, id)
	}
	return r, nil
}

// BroadcastPool lists pending AI_BOOKING requests the given driver may claim.
func (s *Service) BroadcastPool(ctx context.Context, driverID types.ID) ([]*Request, error) {
	open, err := s.store.ListOpenBroadcasts(ctx, time.Now())
	if err != nil {
		return nil, err
	}
	pool := make([]*Request, 0, len(open))
	for _, r := range open {
		if r.RiderID == driverID {
			continue
		}
		pool = append(pool, r)
	}
	return pool, nil
}

// ListOpenBroadcasts exposes the claimable pending requests to the matching
// scheduler.
func (s *Service) ListOpenBroadcasts(ctx context.Context, now time.Time) ([]*Request, error) {
	return s.store.ListOpenBroadcasts(ctx, now)
}

// RunExpiryTicker sweeps lapsed pending requests in the background. Accept
// and Get also check lazily, so the sweep only bounds how long a dead request
// lingers.
func (s *Service) RunExpiryTicker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepExpired(ctx)
		}
	}
}

func (s *Service) sweepExpired(ctx context.Context) {
	lapsed, err := s.store.ListExpired(ctx, time.Now())
	if err != nil {
		s.log.Warn("expiry sweep list failed", "err", err)
		return
	}
	for _, r := range lapsed {
		s.expireNow(ctx, r)
	}
}

// expireNow transitions a pending request to expired and releases any hold.
// Losing the CAS is fine: someone accepted or cancelled first.
func (s *Service) expireNow(ctx context.Context, r *Request) {
	ok, err := s.store.UpdateStatus(ctx, r.ID, StatusPending, StatusExpired, r.StatusVersion, nil, nil)
	if err != nil {
		s.log.Warn("expire transition failed", "request_id", r.ID, "err", err)
		return
	}
	if !ok {
		return
	}
	observability.RequestTransitionsTotal.WithLabelValues(string(StatusExpired)).Inc()
	s.releaseHold(ctx, r)
	s.appendEvent(ctx, r.ID, StatusPending, StatusExpired, "system", nil)
	s.notify.RiderStatus(ctx, r.RiderID, statusUpdate(r.ID, StatusExpired, "no driver accepted in time"))
}

func (s *Service) resolveQuote(ctx context.Context, quoteID, riderID types.ID) (*pricing.Quote, error) {
	q, err := s.quotes.Lookup(ctx, quoteID)
	if err != nil {
		if errors.Is(err, pricing.ErrQuoteNotFound) || errors.Is(err, pricing.ErrQuoteExpired) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}
	if q.RiderID != riderID {
		return nil, ErrValidation
	}
	return q, nil
}

func (s *Service) claimTarget(r *Request, cmd AcceptCommand) (types.ID, error) {
	if r.Mode == ModeJoinRide {
		if r.RideID == nil {
			return "", ErrInvalidState
		}
		if cmd.RideID != "" && cmd.RideID != *r.RideID {
			return "", ErrValidation
		}
		return *r.RideID, nil
	}
	if cmd.RideID == "" {
		return "", ErrValidation
	}
	return cmd.RideID, nil
}

// ensureHold places the fund hold if none exists yet. AI_BOOKING requests
// hold at accept time; JOIN_RIDE already held at creation.
func (s *Service) ensureHold(ctx context.Context, r *Request) error {
	if r.HoldRef != "" {
		return nil
	}
	holdRef, err := s.wallet.Hold(ctx, r.ID, r.RiderID, r.Fare, idemKey(r.ID, "hold"))
	if err != nil {
		return fmt.Errorf("hold funds: %w", err)
	}
	r.HoldRef = holdRef
	return s.store.SetHoldRef(ctx, r.ID, holdRef)
}

func (s *Service) confirmFunds(ctx context.Context, r *Request) error {
	if r.HoldRef == "" {
		return nil
	}
	if err := s.wallet.Confirm(ctx, r.HoldRef, idemKey(r.ID, "capture")); err != nil {
		return fmt.Errorf("capture funds: %w", err)
	}
	return nil
}

// releaseHold is best-effort: the wallet engine's idempotency key means a
// retried release is harmless, and a failed one is surfaced via logs only.
func (s *Service) releaseHold(ctx context.Context, r *Request) {
	if r.HoldRef == "" {
		return
	}
	if err := s.wallet.Release(ctx, r.HoldRef, idemKey(r.ID, "release")); err != nil {
		s.log.Warn("fund release failed", "request_id", r.ID, "hold_ref", r.HoldRef, "err", err)
	}
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actorType string, actorID *types.ID) {
	err := s.store.AppendEvent(ctx, &Event{
		RequestID:  id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		s.log.Warn("event append failed", "request_id", id, "to", to, "err", err)
	}
}

func idemKey(id types.ID, transition string) string {
	return string(id) + ":" + transition
}

func statusPayload(r *Request) map[string]any {
	p := map[string]any{
		"request_id": r.ID,
		"status":     r.Status,
	}
	if r.DriverID != nil {
		p["driver_id"] = *r.DriverID
	}
	if r.RideID != nil {
		p["ride_id"] = *r.RideID
	}
	return p
}

func statusUpdate(id types.ID, status Status, reason string) map[string]any {
	p := map[string]any{"request_id": id, "status": status}
	if reason != "" {
		p["reason"] = reason
	}
	return p
}

func joinOfferPayload(r *Request) map[string]any {
	return map[string]any{
		"request_id":  r.ID,
		"rider_id":    r.RiderID,
		"pickup_lat":  r.Pickup.Lat,
		"pickup_lng":  r.Pickup.Lng,
		"dropoff_lat": r.Dropoff.Lat,
		"dropoff_lng": r.Dropoff.Lng,
		"pickup_at":   r.PickupAt,
		"fare":        r.Fare.Amount,
		"currency":    r.Fare.Currency,
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
