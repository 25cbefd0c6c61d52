// README: Request store contract plus the PostgreSQL implementation (optimistic CAS).
package request

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"unipool/internal/types"
)

// Store is the persistence contract for match requests. UpdateStatus is the
// single atomic transition primitive: it must apply the change only when both
// the current status and the status version still match, so "load, check,
// write" cannot be split by a concurrent writer.
type Store interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id types.ID) (*Request, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID, rideID *types.ID) (bool, error)
	SetHoldRef(ctx context.Context, id types.ID, holdRef string) error
	// ListOpenBroadcasts returns pending AI_BOOKING requests whose claim
	// window is still open at now.
	ListOpenBroadcasts(ctx context.Context, now time.Time) ([]*Request, error)
	// ListExpired returns pending requests whose window or quote lapsed.
	ListExpired(ctx context.Context, now time.Time) ([]*Request, error)
	AppendEvent(ctx context.Context, e *Event) error
}

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

const requestColumns = `
	id, rider_id, mode, status, status_version,
	pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, pickup_at,
	quote_id, fare_amount, fare_currency, quote_expiry,
	ride_id, driver_id, hold_ref, broadcast_until,
	created_at, confirmed_at, started_at, completed_at, cancelled_at, cancel_reason`

func (s *PgStore) Create(ctx context.Context, r *Request) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO requests (
			id, rider_id, mode, status, status_version,
			pickup_lat, pickup_lng, dropoff_lat, dropoff_lng, pickup_at,
			quote_id, fare_amount, fare_currency, quote_expiry,
			ride_id, driver_id, hold_ref, broadcast_until, created_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
		)`,
		string(r.ID), string(r.RiderID), string(r.Mode), string(r.Status), r.StatusVersion,
		r.Pickup.Lat, r.Pickup.Lng, r.Dropoff.Lat, r.Dropoff.Lng, r.PickupAt,
		string(r.QuoteID), r.Fare.Amount, r.Fare.Currency, r.QuoteExpiry,
		idPtr(r.RideID), idPtr(r.DriverID), r.HoldRef, nullableTime(r.BroadcastUntil), r.CreatedAt,
	)
	return err
}

func (s *PgStore) Get(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, string(id))
	return scanRequest(row)
}

// UpdateStatus performs the compare-and-swap transition. RowsAffected of zero
// means another writer got there first.
func (s *PgStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, driverID, rideID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE requests
		SET status = $1,
		    status_version = status_version + 1,
		    driver_id = COALESCE($2, driver_id),
		    ride_id = COALESCE($3, ride_id),
		    confirmed_at = CASE WHEN $1 = 'confirmed' THEN NOW() ELSE confirmed_at END,
		    started_at   = CASE WHEN $1 = 'ongoing'   THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 IN ('cancelled','rejected','expired') THEN NOW() ELSE cancelled_at END
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		string(to), idPtr(driverID), idPtr(rideID), string(id), string(from), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) SetHoldRef(ctx context.Context, id types.ID, holdRef string) error {
	_, err := s.db.Exec(ctx, `UPDATE requests SET hold_ref = $1 WHERE id = $2`, holdRef, string(id))
	return err
}

func (s *PgStore) ListOpenBroadcasts(ctx context.Context, now time.Time) ([]*Request, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE mode = 'AI_BOOKING' AND status = 'pending'
		  AND broadcast_until > $1 AND quote_expiry > $1
		ORDER BY created_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PgStore) ListExpired(ctx context.Context, now time.Time) ([]*Request, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+requestColumns+`
		FROM requests
		WHERE status = 'pending'
		  AND (quote_expiry <= $1 OR (mode = 'AI_BOOKING' AND broadcast_until <= $1))
		ORDER BY created_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRequests(rows)
}

func (s *PgStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO request_state_events (
			request_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		string(e.RequestID), string(e.FromStatus), string(e.ToStatus),
		e.ActorType, idPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

func collectRequests(rows pgx.Rows) ([]*Request, error) {
	var out []*Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	var rideID, driverID, cancelReason *string
	var broadcastUntil *time.Time

	err := row.Scan(
		&r.ID, &r.RiderID, &r.Mode, &r.Status, &r.StatusVersion,
		&r.Pickup.Lat, &r.Pickup.Lng, &r.Dropoff.Lat, &r.Dropoff.Lng, &r.PickupAt,
		&r.QuoteID, &r.Fare.Amount, &r.Fare.Currency, &r.QuoteExpiry,
		&rideID, &driverID, &r.HoldRef, &broadcastUntil,
		&r.CreatedAt, &r.ConfirmedAt, &r.StartedAt, &r.CompletedAt, &r.CancelledAt, &cancelReason,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if rideID != nil {
		v := types.ID(*rideID)
		r.RideID = &v
	}
	if driverID != nil {
		v := types.ID(*driverID)
		r.DriverID = &v
	}
	if cancelReason != nil {
		r.CancelReason = cancelReason
	}
	if broadcastUntil != nil {
		r.BroadcastUntil = *broadcastUntil
	}
	return &r, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
