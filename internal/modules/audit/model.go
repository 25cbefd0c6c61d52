// README: Immutable audit records for matching decisions.
package audit

import (
	"time"

	"unipool/internal/types"
)

// DecisionLog captures one matching attempt: who was considered, how the AI
// re-ranking went, and how long it took. It is a compact summary for later
// analysis, not a replay log.
type DecisionLog struct {
	RequestID        types.ID
	AlgorithmVersion string
	CandidateCount   int
	// RankingBefore/After are compact "rideID:score" summaries of the top
	// few candidates.
	RankingBefore string
	RankingAfter  string
	Success       bool
	FailureReason string
	LatencyMs     int64
	CreatedAt     time.Time
}
