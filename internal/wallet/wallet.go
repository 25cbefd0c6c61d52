// README: Fund-holding engine boundary (hold/confirm/release keyed by request).
package wallet

import (
	"context"

	"unipool/internal/types"
)

// Engine is the wallet collaborator. Every call carries the lifecycle
// manager's idempotency key so a retried transition never double-holds or
// double-captures funds; implementations must honor it.
type Engine interface {
	// Hold reserves funds for a request and returns an opaque hold reference.
	Hold(ctx context.Context, requestID, riderID types.ID, amount types.Money, idempotencyKey string) (string, error)
	// Confirm captures a previously held amount.
	Confirm(ctx context.Context, holdRef, idempotencyKey string) error
	// Release returns held funds to the rider.
	Release(ctx context.Context, holdRef, idempotencyKey string) error
}

// Noop accepts every operation without moving money. Used in dev environments
// where no payment keys are configured.
type Noop struct{}

func (Noop) Hold(_ context.Context, requestID, _ types.ID, _ types.Money, _ string) (string, error) {
	return "noop-hold-" + string(requestID), nil
}

func (Noop) Confirm(context.Context, string, string) error { return nil }

func (Noop) Release(context.Context, string, string) error { return nil }
