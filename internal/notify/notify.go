// README: Real-time notification fan-out; fire-and-forget from the core's perspective.
package notify

import (
	"context"

	"unipool/internal/types"
)

// Notifier pushes offer and status payloads toward drivers and riders.
// Implementations must never propagate delivery failures to the caller.
type Notifier interface {
	DriverOffer(ctx context.Context, driverID types.ID, payload any)
	RiderStatus(ctx context.Context, riderID types.ID, payload any)
}

// Noop discards all notifications. Used when no broker is configured.
type Noop struct{}

func (Noop) DriverOffer(context.Context, types.ID, any) {}
func (Noop) RiderStatus(context.Context, types.ID, any) {}
