// README: Ride store backed by PostgreSQL; seat changes use conditional updates.
package ride

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"unipool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (
			id, driver_id, driver_rating, vehicle,
			origin_lat, origin_lng, dest_lat, dest_lng,
			scheduled_at, seats_total, seats_free, max_detour_min, status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		string(r.ID), string(r.DriverID), r.DriverRating, r.Vehicle,
		r.Origin.Lat, r.Origin.Lng, r.Destination.Lat, r.Destination.Lng,
		r.ScheduledAt, r.SeatsTotal, r.SeatsFree, r.MaxDetourMin, string(r.Status), r.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, driver_id, driver_rating, vehicle,
		       origin_lat, origin_lng, dest_lat, dest_lng,
		       scheduled_at, seats_total, seats_free, max_detour_min, status, created_at
		FROM rides WHERE id = $1`, string(id))
	return scanRide(row)
}

// ListOpenBetween returns open rides scheduled inside [from, to], the raw
// candidate pool for the geo scorer.
func (s *Store) ListOpenBetween(ctx context.Context, from, to time.Time) ([]*Ride, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, driver_id, driver_rating, vehicle,
		       origin_lat, origin_lng, dest_lat, dest_lng,
		       scheduled_at, seats_total, seats_free, max_detour_min, status, created_at
		FROM rides
		WHERE status = 'open' AND seats_free > 0 AND scheduled_at BETWEEN $1 AND $2
		ORDER BY scheduled_at`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReserveSeat decrements seats_free if one remains, flipping the ride to full
// when the last seat goes. Returns false when the ride is not open or has no
// seats left, so concurrent joiners racing for the last seat lose cleanly.
func (s *Store) ReserveSeat(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE rides
		SET seats_free = seats_free - 1,
		    status = CASE WHEN seats_free - 1 = 0 THEN 'full' ELSE status END
		WHERE id = $1 AND status = 'open' AND seats_free > 0`, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseSeat returns a seat after a cancelled confirmation and reopens a
// previously full ride.
func (s *Store) ReleaseSeat(ctx context.Context, id types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE rides
		SET seats_free = LEAST(seats_free + 1, seats_total),
		    status = CASE WHEN status = 'full' THEN 'open' ELSE status END
		WHERE id = $1`, string(id))
	return err
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	err := row.Scan(
		&r.ID, &r.DriverID, &r.DriverRating, &r.Vehicle,
		&r.Origin.Lat, &r.Origin.Lng, &r.Destination.Lat, &r.Destination.Lng,
		&r.ScheduledAt, &r.SeatsTotal, &r.SeatsFree, &r.MaxDetourMin, &r.Status, &r.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
