// README: Quote issuance and lookup against the external pricing engine.
package pricing

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math"
	"time"

	"unipool/internal/types"
)

// quoteTTL is how long an issued quote stays bindable to a request.
const quoteTTL = 10 * time.Minute

// Estimator is the external fare engine, consumed as a pure function.
type Estimator func(pickup, dropoff types.Point, at time.Time) types.Money

type QuoteStore interface {
	Create(ctx context.Context, q *Quote) error
	Get(ctx context.Context, id types.ID) (*Quote, error)
}

type Service struct {
	store    QuoteStore
	estimate Estimator
}

func NewService(store QuoteStore, estimate Estimator) *Service {
	return &Service{store: store, estimate: estimate}
}

// Issue asks the fare engine for a price and persists the resulting quote.
func (s *Service) Issue(ctx context.Context, riderID types.ID, pickup, dropoff types.Point, at time.Time) (*Quote, error) {
	now := time.Now()
	q := &Quote{
		ID:        newQuoteID(),
		RiderID:   riderID,
		Fare:      s.estimate(pickup, dropoff, at),
		ExpiresAt: now.Add(quoteTTL),
		CreatedAt: now,
	}
	if err := s.store.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// Lookup returns the quote or ErrQuoteExpired when its validity has lapsed.
func (s *Service) Lookup(ctx context.Context, id types.ID) (*Quote, error) {
	q, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.Expired(time.Now()) {
		return nil, ErrQuoteExpired
	}
	return q, nil
}

// DefaultEstimator is a straight-line tariff used when no external fare
// engine is wired: base fare plus a per-kilometre rate, with a night
// surcharge between 21:00 and 05:00. Amounts are in cents.
func DefaultEstimator(pickup, dropoff types.Point, at time.Time) types.Money {
	const (
		baseCents  = 200
		perKmCents = 80
	)
	km := haversineKm(pickup, dropoff)
	amount := int64(baseCents + perKmCents*km)
	if h := at.Hour(); h >= 21 || h < 5 {
		amount = amount * 120 / 100
	}
	return types.Money{Amount: amount, Currency: "USD"}
}

func haversineKm(a, b types.Point) float64 {
	const earthRadiusKm = 6371.0
	la1 := a.Lat * math.Pi / 180
	la2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(la1)*math.Cos(la2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func newQuoteID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
