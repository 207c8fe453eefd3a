package services

import (
	"context"
	"fmt"
	"net/http"

	"tubematch/internal/token"
)

// SubscriptionCookie carries the signed subscription claim.
const SubscriptionCookie = "subscription"

// Oracle turns the persisted billing state of a user into a fresh
// subscription claim.
type Oracle struct {
	store  BillingStore
	codec  *token.Codec
	secure bool
}

// NewOracle builds an Oracle. secureCookie sets the Secure flag on issued cookies.
func NewOracle(store BillingStore, codec *token.Codec, secureCookie bool) *Oracle {
	return &Oracle{store: store, codec: codec, secure: secureCookie}
}

// Refresh mints a claim for userID and returns it packaged as the
// subscription cookie along with the subscription flag it asserts.
func (o *Oracle) Refresh(ctx context.Context, userID string) (*http.Cookie, bool, error) {
	const op = "services.Oracle.Refresh"
	if userID == "" {
		return nil, false, fmt.Errorf("%s: %w", op, ErrInvalidRequest)
	}
	active, err := o.store.HasActiveSubscription(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	raw, err := o.codec.Mint(userID, active)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &http.Cookie{
		Name:     SubscriptionCookie,
		Value:    raw,
		Path:     "/",
		MaxAge:   o.codec.MaxAge(),
		HttpOnly: true,
		Secure:   o.secure,
		SameSite: http.SameSiteLaxMode,
	}, active, nil
}
