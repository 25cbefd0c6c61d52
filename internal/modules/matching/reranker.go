// README: AI re-ranking with retry, defensive parsing and fallback to the geo order.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"unipool/internal/ai"
	"unipool/internal/config"
	"unipool/internal/modules/audit"
	"unipool/internal/observability"
)

// DecisionSink receives one audit entry per re-rank invocation. Implemented
// by audit.Recorder; must never block the caller.
type DecisionSink interface {
	Record(entry audit.DecisionLog)
}

type Reranker struct {
	provider ai.Ranker
	sink     DecisionSink
	cfg      config.RerankConfig
	log      *slog.Logger

	// sleep is swapped in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewReranker(provider ai.Ranker, sink DecisionSink, cfg config.RerankConfig, log *slog.Logger) *Reranker {
	return &Reranker{
		provider: provider,
		sink:     sink,
		cfg:      cfg,
		log:      log,
		sleep:    sleepCtx,
	}
}

// Rerank asks the provider to re-order the top candidates and rescores them.
// The output is always a permutation of the input: parsing repairs partial or
// malformed provider replies, and any failure falls back to the original
// order when fallback is enabled. With fallback disabled the provider failure
// is returned to the caller.
func (rr *Reranker) Rerank(ctx context.Context, q RideQuery, proposals []Proposal) ([]Proposal, error) {
	if rr.provider == nil || len(proposals) < 2 {
		return proposals, nil
	}

	sendCount := len(proposals)
	if rr.cfg.MaxCandidates > 0 && sendCount > rr.cfg.MaxCandidates {
		sendCount = rr.cfg.MaxCandidates
	}
	head := proposals[:sendCount]

	start := time.Now()
	raw, err := rr.callWithRetry(ctx, q, head)
	latency := time.Since(start)
	observability.RerankLatency.Observe(latency.Seconds())

	if err != nil {
		observability.RerankOutcomesTotal.WithLabelValues("failure").Inc()
		rr.record(q, proposals, proposals, false, err.Error(), latency)
		if rr.cfg.Fallback {
			rr.log.Warn("ai rerank failed, falling back to geo order", "request_id", q.RequestID, "err", err)
			return proposals, nil
		}
		return nil, err
	}

	order := parseRankOrder(raw, len(head))
	ranked := make([]Proposal, 0, len(proposals))
	for _, idx := range order {
		ranked = append(ranked, head[idx])
	}
	// Candidates beyond the provider cap keep their geo order at the tail.
	ranked = append(ranked, proposals[sendCount:]...)
	rescore(ranked)

	observability.RerankOutcomesTotal.WithLabelValues("success").Inc()
	rr.record(q, proposals, ranked, true, "", latency)
	return ranked, nil
}

// callWithRetry applies the retry policy: retryable failures back off
// exponentially until the attempt budget runs out, non-retryable failures
// abort immediately. Each call carries its own timeout, separate from the
// backoff schedule.
func (rr *Reranker) callWithRetry(ctx context.Context, q RideQuery, head []Proposal) (string, error) {
	prompt := buildRankPrompt(q, head)

	attempts := rr.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := rr.cfg.BaseBackoff << (attempt - 1)
			if err := rr.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if rr.cfg.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, rr.cfg.CallTimeout)
		}
		raw, err := rr.provider.RankOrder(callCtx, rankSystemInstruction, prompt)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			if strings.TrimSpace(raw) == "" {
				return "", fmt.Errorf("provider returned empty ranking")
			}
			return raw, nil
		}

		lastErr = err
		if !ai.IsRetryable(err) {
			return "", err
		}
		rr.log.Debug("ai rank attempt failed", "request_id", q.RequestID, "attempt", attempt+1, "err", err)
	}
	return "", fmt.Errorf("rank retries exhausted: %w", lastErr)
}

// rescore overwrites scores with the fixed post-AI ladder: top candidate gets
// the top score, each next rank steps down, floored at the minimum.
func rescore(ranked []Proposal) {
	for i := range ranked {
		score := rerankTopScore - float64(i)*rerankScoreStep
		if score < rerankMinScore {
			score = rerankMinScore
		}
		ranked[i].Score = score
	}
}

func (rr *Reranker) record(q RideQuery, before, after []Proposal, success bool, reason string, latency time.Duration) {
	if rr.sink == nil {
		return
	}
	rr.sink.Record(audit.DecisionLog{
		RequestID:        q.RequestID,
		AlgorithmVersion: algorithmVersion,
		CandidateCount:   len(before),
		RankingBefore:    summarize(before),
		RankingAfter:     summarize(after),
		Success:          success,
		FailureReason:    reason,
		LatencyMs:        latency.Milliseconds(),
	})
}

// summarize renders the top few candidates as "rideID:score" for the audit
// trail.
func summarize(proposals []Proposal) string {
	depth := summaryDepth
	if depth > len(proposals) {
		depth = len(proposals)
	}
	parts := make([]string, 0, depth)
	for _, p := range proposals[:depth] {
		parts = append(parts, fmt.Sprintf("%s:%.1f", p.Ride.ID, p.Score))
	}
	return strings.Join(parts, ",")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
