// README: Fare quote records referenced by match requests.
package pricing

import (
	"errors"
	"time"

	"unipool/internal/types"
)

var (
	ErrQuoteNotFound = errors.New("quote not found")
	ErrQuoteExpired  = errors.New("quote expired")
)

// Quote is a fare quote issued by the pricing engine. The fare formula itself
// is external; this module only records and validates what the engine returns.
type Quote struct {
	ID        types.ID
	RiderID   types.ID
	Fare      types.Money
	ExpiresAt time.Time
	CreatedAt time.Time
}

func (q *Quote) Expired(now time.Time) bool {
	return !now.Before(q.ExpiresAt)
}
