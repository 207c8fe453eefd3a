package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tubematch/internal/models"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type googleUserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Google is the Provider backed by Google OAuth2.
type Google struct {
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// GoogleOption configures a Google provider.
type GoogleOption func(*Google)

// WithEndpoints points the provider at non-production OAuth and userinfo URLs.
func WithEndpoints(endpoint oauth2.Endpoint, userInfoURL string) GoogleOption {
	return func(g *Google) {
		g.config.Endpoint = endpoint
		g.userInfoURL = userInfoURL
	}
}

func WithHTTPClient(client *http.Client) GoogleOption {
	return func(g *Google) {
		g.httpClient = client
	}
}

// NewGoogle builds a provider requesting the email and profile scopes.
func NewGoogle(clientID, clientSecret, redirectURL string, opts ...GoogleOption) *Google {
	g := &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		userInfoURL: googleUserInfoURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Google) Name() string { return "google" }

func (g *Google) SignInURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades a callback code for the access token used as the session credential.
func (g *Google) Exchange(ctx context.Context, code string) (string, error) {
	const op = "identity.Google.Exchange"
	if code == "" {
		return "", ErrMissingCode
	}
	tok, err := g.config.Exchange(g.clientContext(ctx), code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return "", fmt.Errorf("%s: %w: %s", op, ErrInvalidSession, retrieveErr.ErrorCode)
		}
		return "", fmt.Errorf("%s: %w: %v", op, ErrProviderFailure, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%s: %w: no access token in session", op, ErrInvalidSession)
	}
	return tok.AccessToken, nil
}

// Resolve introspects credential with the userinfo endpoint.
func (g *Google) Resolve(ctx context.Context, credential string) (models.Identity, error) {
	const op = "identity.Google.Resolve"
	if credential == "" {
		return models.Identity{}, ErrUnauthenticated
	}

	client := oauth2.NewClient(g.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: credential,
		TokenType:   "Bearer",
	}))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: %v", op, ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest:
		return models.Identity{}, ErrInvalidSession
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.Identity{}, fmt.Errorf("%s: %w: status %d: %s", op, ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return models.Identity{}, fmt.Errorf("%s: %w: decode user info: %v", op, ErrProviderFailure, err)
	}
	if info.ID == "" {
		return models.Identity{}, ErrInvalidSession
	}
	// Billing customers are matched by email, so it has to be verified.
	if !info.VerifiedEmail {
		return models.Identity{}, fmt.Errorf("%s: %w: email not verified", op, ErrInvalidSession)
	}
	return models.Identity{
		UserID:      info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		AvatarURL:   info.Picture,
	}, nil
}

func (g *Google) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}
