// README: Quote store backed by PostgreSQL.
package pricing

import (
	"context"

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

func (s *Store) Create(ctx context.Context, q *Quote) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO fare_quotes (id, rider_id, amount, currency, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		string(q.ID), string(q.RiderID), q.Fare.Amount, q.Fare.Currency, q.ExpiresAt, q.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Quote, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, rider_id, amount, currency, expires_at, created_at
		FROM fare_quotes WHERE id = $1`, string(id))

	var q Quote
	err := row.Scan(&q.ID, &q.RiderID, &q.Fare.Amount, &q.Fare.Currency, &q.ExpiresAt, &q.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}
