package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/habedi/gigsync/db"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key")

// mintToken signs a token for subject that expires at exp.
func mintToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := tok.SignedString(testSigningKey)
	require.NoError(t, err)
	return signed
}

func freshToken(t *testing.T, subject string) string {
	return mintToken(t, subject, time.Now().Add(time.Hour))
}

func staleToken(t *testing.T, subject string) string {
	return mintToken(t, subject, time.Now().Add(-time.Second))
}

// newTestStore returns a Redis-backed credential store on a throwaway miniredis.
func newTestStore(t *testing.T) db.CredentialRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return db.NewRedisCredentialRepository(rdb, "")
}

// newTestClient starts handler on an httptest server and points a client at its /api prefix.
func newTestClient(t *testing.T, handler http.Handler, store db.CredentialRepository, opts ...func(*Config)) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:        srv.URL + "/api",
		RefreshTimeout: 2 * time.Second,
		RequestTimeout: 5 * time.Second,
		RetryBackoff:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(cfg, store)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, srv
}

func seed(t *testing.T, store db.CredentialRepository, cred *db.Credential) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), cred))
}

func storedToken(t *testing.T, store db.CredentialRepository) string {
	t.Helper()
	cred, err := store.Get(context.Background())
	require.NoError(t, err)
	if cred == nil {
		return ""
	}
	return cred.AccessToken
}
