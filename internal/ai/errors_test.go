// README: Error classification tests for the provider retry policy.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"retryable provider error", retryableErr("generate", errors.New("503")), true},
		{"permanent provider error", permanentErr("generate", errors.New("blocked")), false},
		{"wrapped provider error", fmt.Errorf("rank retries exhausted: %w", permanentErr("generate", errors.New("blocked"))), false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"unclassified", errors.New("connection reset by peer"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyCallError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"server error", &googleapi.Error{Code: http.StatusInternalServerError}, true},
		{"bad gateway", &googleapi.Error{Code: http.StatusBadGateway}, true},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, true},
		{"bad request", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, false},
		{"call deadline", context.DeadlineExceeded, true},
		{"caller canceled", context.Canceled, false},
		{"transport error", errors.New("connection reset by peer"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			classified := classifyCallError(tc.err)
			var pe *ProviderError
			if !errors.As(classified, &pe) {
				t.Fatalf("expected a ProviderError, got %T", classified)
			}
			if pe.Retryable != tc.retryable {
				t.Fatalf("classifyCallError(%v): retryable = %v, want %v", tc.err, pe.Retryable, tc.retryable)
			}
			if !errors.Is(classified, tc.err) {
				t.Fatal("classified error must wrap the original")
			}
		})
	}
}
