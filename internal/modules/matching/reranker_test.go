// README: Re-ranker tests: retry policy, fallback, rescoring, audit entries.
package matching

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"unipool/internal/ai"
	"unipool/internal/config"
	"unipool/internal/modules/audit"
	"unipool/internal/modules/ride"
	"unipool/internal/types"
)

// rankerFunc adapts a function to the ai.Ranker interface.
type rankerFunc func(ctx context.Context, instruction, prompt string) (string, error)

func (f rankerFunc) RankOrder(ctx context.Context, instruction, prompt string) (string, error) {
	return f(ctx, instruction, prompt)
}

// captureSink records audit entries synchronously.
type captureSink struct {
	entries []audit.DecisionLog
}

func (s *captureSink) Record(entry audit.DecisionLog) {
	s.entries = append(s.entries, entry)
}

func testRerankConfig() config.RerankConfig {
	return config.RerankConfig{
		MaxCandidates: 5,
		MaxAttempts:   3,
		BaseBackoff:   time.Second,
		CallTimeout:   10 * time.Second,
		Fallback:      true,
	}
}

func testProposals(ids ...string) []Proposal {
	out := make([]Proposal, 0, len(ids))
	for i, id := range ids {
		out = append(out, Proposal{
			Ride:  &ride.Ride{ID: types.ID(id), DriverID: types.ID("d_" + id)},
			Score: 90 - float64(i)*10,
		})
	}
	return out
}

func newTestReranker(provider ai.Ranker, sink DecisionSink, cfg config.RerankConfig) *Reranker {
	rr := NewReranker(provider, sink, cfg, slog.Default())
	rr.sleep = func(context.Context, time.Duration) error { return nil }
	return rr
}

func TestRerankReordersAndRescores(t *testing.T) {
	provider := rankerFunc(func(context.Context, string, string) (string, error) {
		return "2,1,3", nil
	})
	sink := &captureSink{}
	rr := newTestReranker(provider, sink, testRerankConfig())

	got, err := rr.Rerank(context.Background(), RideQuery{RequestID: "req1"}, testProposals("a", "b", "c"))
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	wantOrder := []types.ID{"b", "a", "c"}
	for i, want := range wantOrder {
		if got[i].Ride.ID != want {
			t.Fatalf("position %d: got %s, want %s", i, got[i].Ride.ID, want)
		}
	}
	wantScores := []float64{100, 95, 90}
	for i, want := range wantScores {
		if got[i].Score != want {
			t.Fatalf("position %d: score %.1f, want %.1f", i, got[i].Score, want)
		}
	}

	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if !e.Success || e.CandidateCount != 3 || e.RequestID != "req1" {
		t.Fatalf("unexpected audit entry: %+v", e)
	}
}

func TestRerankScoreFloor(t *testing.T) {
	provider := rankerFunc(func(context.Context, string, string) (string, error) {
		return "1,2,3,4,5,6,7,8,9,10,11,12,13", nil
	})
	cfg := testRerankConfig()
	cfg.MaxCandidates = 13
	rr := newTestReranker(provider, &captureSink{}, cfg)

	ids := make([]string, 13)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals(ids...))
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	// Rank 11 onward would compute below the floor and must clamp to it.
	if got[12].Score != 50 {
		t.Fatalf("expected floor score 50, got %.1f", got[12].Score)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("scores not monotonically decreasing at %d", i)
		}
	}
}

func TestRerankRetriesRetryableFailure(t *testing.T) {
	calls := 0
	provider := rankerFunc(func(context.Context, string, string) (string, error) {
		calls++
		if calls < 3 {
			return "", &ai.ProviderError{Op: "generate", Retryable: true, Err: errors.New("503")}
		}
		return "2,1", nil
	})
	sink := &captureSink{}
	rr := newTestReranker(provider, sink, testRerankConfig())

	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a", "b"))
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if got[0].Ride.ID != "b" {
		t.Fatalf("expected provider order applied after retries, got %s first", got[0].Ride.ID)
	}
	if len(sink.entries) != 1 || !sink.entries[0].Success {
		t.Fatalf("expected a single success entry, got %+v", sink.entries)
	}
}

func TestRerankRetriesAfterCallTimeout(t *testing.T) {
	calls := 0
	provider := rankerFunc(func(ctx context.Context, _, _ string) (string, error) {
		calls++
		if calls == 1 {
			// Simulate a provider that hangs past the per-call deadline.
			if _, ok := ctx.Deadline(); !ok {
				t.Fatal("per-call context must carry a deadline")
			}
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "2,1", nil
	})
	cfg := testRerankConfig()
	cfg.CallTimeout = 5 * time.Millisecond
	sink := &captureSink{}
	rr := newTestReranker(provider, sink, cfg)

	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a", "b"))
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if calls != 2 {
		t.Fatalf("timed-out call must be retried, got %d calls", calls)
	}
	if got[0].Ride.ID != "b" {
		t.Fatalf("expected provider order applied after timeout retry, got %s first", got[0].Ride.ID)
	}
	if len(sink.entries) != 1 || !sink.entries[0].Success {
		t.Fatalf("expected a single success entry, got %+v", sink.entries)
	}
}

func TestRerankNonRetryableAbortsImmediately(t *testing.T) {
	calls := 0
	provider := rankerFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "", &ai.ProviderError{Op: "generate", Retryable: false, Err: errors.New("blocked")}
	})
	sink := &captureSink{}
	rr := newTestReranker(provider, sink, testRerankConfig())

	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a", "b"))
	if err != nil {
		t.Fatalf("fallback should swallow provider failure, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-retryable error must not be retried, got %d calls", calls)
	}
	// Fallback keeps the geo order and scores untouched.
	if got[0].Ride.ID != "a" || got[0].Score != 90 {
		t.Fatalf("fallback altered proposals: %+v", got[0])
	}
	if len(sink.entries) != 1 || sink.entries[0].Success || sink.entries[0].FailureReason == "" {
		t.Fatalf("expected a failure audit entry, got %+v", sink.entries)
	}
}

func TestRerankFallbackDisabledReturnsError(t *testing.T) {
	provider := rankerFunc(func(context.Context, string, string) (string, error) {
		return "", &ai.ProviderError{Op: "generate", Retryable: true, Err: errors.New("down")}
	})
	cfg := testRerankConfig()
	cfg.Fallback = false
	rr := newTestReranker(provider, &captureSink{}, cfg)

	_, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a", "b"))
	if err == nil {
		t.Fatal("expected error with fallback disabled")
	}
}

func TestRerankEmptyResponseIsFailure(t *testing.T) {
	provider := rankerFunc(func(context.Context, string, string) (string, error) {
		return "   \n", nil
	})
	sink := &captureSink{}
	rr := newTestReranker(provider, sink, testRerankConfig())

	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a", "b"))
	if err != nil {
		t.Fatalf("fallback should swallow empty response, got %v", err)
	}
	if got[0].Ride.ID != "a" {
		t.Fatalf("expected geo order preserved, got %s first", got[0].Ride.ID)
	}
}

func TestRerankCapsCandidatesAndKeepsTail(t *testing.T) {
	var sawPrompt string
	provider := rankerFunc(func(_ context.Context, _, prompt string) (string, error) {
		sawPrompt = prompt
		return "3,1,2", nil
	})
	cfg := testRerankConfig()
	cfg.MaxCandidates = 3
	rr := newTestReranker(provider, &captureSink{}, cfg)

	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	wantOrder := []types.ID{"c", "a", "b", "d", "e"}
	for i, want := range wantOrder {
		if got[i].Ride.ID != want {
			t.Fatalf("position %d: got %s, want %s", i, got[i].Ride.ID, want)
		}
	}
	if sawPrompt == "" {
		t.Fatal("provider never saw a prompt")
	}
}

func TestRerankSkipsSingleCandidate(t *testing.T) {
	provider := rankerFunc(func(context.Context, string, string) (string, error) {
		t.Fatal("provider must not be called for a single candidate")
		return "", nil
	})
	rr := newTestReranker(provider, &captureSink{}, testRerankConfig())

	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a"))
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(got) != 1 || got[0].Score != 90 {
		t.Fatalf("single candidate must pass through untouched: %+v", got)
	}
}

func TestRerankNilProviderPassesThrough(t *testing.T) {
	rr := newTestReranker(nil, &captureSink{}, testRerankConfig())
	got, err := rr.Rerank(context.Background(), RideQuery{}, testProposals("a", "b"))
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if got[0].Ride.ID != "a" || got[1].Ride.ID != "b" {
		t.Fatal("nil provider must preserve geo order")
	}
}
