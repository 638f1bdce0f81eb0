package auth

import (
	"context"

	"github.com/habedi/gigsync/db"
)

// CredentialStore defines the contract for any component that can store, retrieve and forget the session.
// db.CredentialRepository implementations satisfy it directly.
type CredentialStore interface {
	Get(ctx context.Context) (*db.Credential, error)
	Upsert(ctx context.Context, cred *db.Credential) error
	Clear(ctx context.Context) error
}

// RefreshResult is what a successful refresh call hands back.
// SessionCookie is empty unless the server rotated the refresh cookie.
type RefreshResult struct {
	AccessToken   string
	SessionCookie string
}

// TokenRefresher defines the contract for any component that can perform a token refresh action.
// Implementations must not route through the authenticating transport.
type TokenRefresher interface {
	Refresh(ctx context.Context) (RefreshResult, error)
}
