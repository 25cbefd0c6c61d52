// README: Decision log store backed by PostgreSQL.
package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Insert(ctx context.Context, e *DecisionLog) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO matching_decision_logs (
			request_id, algorithm_version, candidate_count,
			ranking_before, ranking_after, success, failure_reason, latency_ms, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		string(e.RequestID), e.AlgorithmVersion, e.CandidateCount,
		e.RankingBefore, e.RankingAfter, e.Success, e.FailureReason, e.LatencyMs, e.CreatedAt,
	)
	return err
}
