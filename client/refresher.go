package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/habedi/gigsync/auth"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// HTTPRefresher implements auth.TokenRefresher against POST /auth/refresh.
// The session is identified by the refresh cookie kept in the credential store.
type HTTPRefresher struct {
	url        string
	store      auth.CredentialStore
	cookieName string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewHTTPRefresher is the constructor for HTTPRefresher. httpClient must not use the authenticating transport.
func NewHTTPRefresher(refreshURL string, store auth.CredentialStore, cookieName string, httpClient *http.Client) *HTTPRefresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: auth.DefaultRefreshTimeout}
	}
	if cookieName == "" {
		cookieName = DefaultRefreshCookieName
	}
	return &HTTPRefresher{
		url:        refreshURL,
		store:      store,
		cookieName: cookieName,
		http:       httpClient,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "refresh-endpoint",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A rejected session is an answer from a healthy server.
			IsSuccessful: func(err error) bool {
				return err == nil || auth.IsTerminal(err)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			},
		}),
	}
}

var errNoSession = errors.New("no session cookie to refresh with")

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Refresh asks the server for a new access token.
// A 401 is terminal; anything else, including network errors and malformed bodies, is transient.
func (r *HTTPRefresher) Refresh(ctx context.Context) (auth.RefreshResult, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.refresh(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return auth.RefreshResult{}, &auth.RefreshError{Err: err}
		}
		return auth.RefreshResult{}, err
	}
	return out.(auth.RefreshResult), nil
}

func (r *HTTPRefresher) refresh(ctx context.Context) (auth.RefreshResult, error) {
	cred, err := r.store.Get(ctx)
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{Err: fmt.Errorf("failed to read credentials: %w", err)}
	}
	if cred == nil || cred.SessionCookie == "" {
		return auth.RefreshResult{}, &auth.RefreshError{Terminal: true, Err: errNoSession}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, http.NoBody)
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.AddCookie(&http.Cookie{Name: r.cookieName, Value: cred.SessionCookie})

	resp, err := r.http.Do(req)
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{Err: err}
	}
	defer closeResponseBody(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return auth.RefreshResult{}, &auth.RefreshError{
			Terminal:   true,
			StatusCode: resp.StatusCode,
			Err:        errors.New(apiMessage(body, "session expired")),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return auth.RefreshResult{}, &auth.RefreshError{
			StatusCode: resp.StatusCode,
			Err:        errors.New(apiMessage(body, http.StatusText(resp.StatusCode))),
		}
	}

	var payload refreshResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return auth.RefreshResult{}, &auth.RefreshError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse refresh response: %w", err)}
	}
	if payload.AccessToken == "" {
		return auth.RefreshResult{}, &auth.RefreshError{StatusCode: resp.StatusCode, Err: errors.New("refresh response carried no access token")}
	}

	return auth.RefreshResult{
		AccessToken:   payload.AccessToken,
		SessionCookie: cookieValue(resp, r.cookieName),
	}, nil
}

// cookieValue returns the named cookie set by resp, or "" when the server did not rotate it.
func cookieValue(resp *http.Response, name string) string {
	for _, c := range resp.Cookies() {
		if c.Name == name && c.Value != "" {
			return c.Value
		}
	}
	return ""
}
