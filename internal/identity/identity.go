// Package identity resolves opaque session credentials to authenticated
// identities by asking the identity provider, and drives the provider's
// OAuth sign-in flow.
package identity

import (
	"context"
	"errors"

	"tubematch/internal/models"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrInvalidSession  = errors.New("invalid authentication")
	ErrProviderFailure = errors.New("identity provider failure")
	ErrMissingCode     = errors.New("missing authorization code")
)

// Provider is the identity-provider capability the server depends on.
type Provider interface {
	Name() string
	// SignInURL returns the consent screen URL carrying state.
	SignInURL(state string) string
	// Exchange trades a callback code for a session credential.
	Exchange(ctx context.Context, code string) (string, error)
	// Resolve introspects a session credential. It is called on every
	// protected request; identities are never cached.
	Resolve(ctx context.Context, credential string) (models.Identity, error)
}
