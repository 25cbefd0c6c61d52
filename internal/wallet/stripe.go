package wallet

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"unipool/internal/types"
)

// StripeEngine is a thin wrapper around stripe-go using manual-capture
// PaymentIntents for the hold/confirm/release flow.
type StripeEngine struct{}

// NewStripeEngine initializes the stripe client with the given API key.
func NewStripeEngine(apiKey string) *StripeEngine {
	stripe.Key = apiKey
	return &StripeEngine{}
}

// Hold creates a PaymentIntent with capture_method=manual to reserve funds.
// The idempotency key makes a retried hold return the same intent.
func (s *StripeEngine) Hold(ctx context.Context, requestID, riderID types.ID, amount types.Money, idempotencyKey string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount.Amount),
		Currency:      stripe.String(amount.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	params.AddMetadata("request_id", string(requestID))
	params.AddMetadata("rider_id", string(riderID))

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Confirm captures a previously-held PaymentIntent.
func (s *StripeEngine) Confirm(ctx context.Context, holdRef, idempotencyKey string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	_, err := paymentintent.Capture(holdRef, params)
	return err
}

// Release cancels the hold on a PaymentIntent.
func (s *StripeEngine) Release(ctx context.Context, holdRef, idempotencyKey string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	_, err := paymentintent.Cancel(holdRef, params)
	return err
}
