// README: Common money value object used across modules.
package types

// Money is an amount in the currency's smallest unit (cents for USD).
type Money struct {
	Amount   int64
	Currency string
}
