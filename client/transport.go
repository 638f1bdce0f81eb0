package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/habedi/gigsync/auth"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-Id"

type retriedKey struct{}

// IsRetried reports whether req is the single replay of a request the server rejected.
func IsRetried(req *http.Request) bool {
	v, _ := req.Context().Value(retriedKey{}).(bool)
	return v
}

// WithRetried marks req as already replayed so it is never retried again.
func WithRetried(req *http.Request) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), retriedKey{}, true))
}

// authTransport runs every outbound request through AttachAuth and every response through HandleResponse.
type authTransport struct {
	client *Client
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	pending, err := replayable(req)
	if err != nil {
		return nil, err
	}

	out, err := t.client.AttachAuth(pending)
	if err != nil {
		closeRequestBody(pending)
		return nil, err
	}

	resp, err := t.client.base.RoundTrip(out)
	return t.client.HandleResponse(out, resp, err)
}

// CloseIdleConnections forwards to the base transport so Client.Close releases pooled connections.
func (t *authTransport) CloseIdleConnections() {
	closeIdle(t.client.base)
}

// AttachAuth returns a copy of req carrying a bearer token.
// Requests to authentication endpoints and requests made while logged out are sent without one.
// A stale token is refreshed first; if that fails the request is refused rather than sent unauthenticated.
func (c *Client) AttachAuth(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if out.Header.Get(requestIDHeader) == "" {
		out.Header.Set(requestIDHeader, uuid.NewString())
	}
	if c.isAuthEndpoint(out.URL) {
		return out, nil
	}

	cred, err := c.store.Get(out.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !cred.HasToken() {
		out.Header.Del("Authorization")
		return out, nil
	}

	access := cred.AccessToken
	if c.clock.IsStale(access) {
		log.Debug().Str("method", out.Method).Str("url", out.URL.String()).Msg("Access token is stale, refreshing before sending")
		access, err = c.coord.EnsureFreshToken(out.Context(), access)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", auth.ErrAuthUnavailable, err)
		}
	}
	out.Header.Set("Authorization", "Bearer "+access)
	return out, nil
}

// HandleResponse inspects the outcome of req.
// A 401 on a request that carried a token is answered with one refresh and one replay; everything
// else, including a 401 from an authentication endpoint or from a replay, is returned unchanged.
func (c *Client) HandleResponse(req *http.Request, resp *http.Response, err error) (*http.Response, error) {
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	if c.isAuthEndpoint(req.URL) || IsRetried(req) {
		return resp, nil
	}
	rejected := bearerToken(req)
	if rejected == "" {
		return resp, nil
	}

	access, ferr := c.tokenAfterRejection(req.Context(), rejected)
	if ferr != nil {
		log.Warn().Err(ferr).Str("method", req.Method).Str("url", req.URL.String()).Msg("Could not refresh after 401, returning original response")
		return resp, nil
	}

	retry, rerr := rewind(req)
	if rerr != nil {
		log.Warn().Err(rerr).Str("url", req.URL.String()).Msg("Request body cannot be replayed")
		return resp, nil
	}
	closeResponseBody(resp)

	retry = WithRetried(retry)
	retry.Header.Set("Authorization", "Bearer "+access)
	log.Debug().Str("method", retry.Method).Str("url", retry.URL.String()).Msg("Replaying request with refreshed token")
	return c.base.RoundTrip(retry)
}

// tokenAfterRejection avoids a second refresh when another request already replaced the rejected token.
func (c *Client) tokenAfterRejection(ctx context.Context, rejected string) (string, error) {
	cred, err := c.store.Get(ctx)
	if err == nil && cred.HasToken() && cred.AccessToken != rejected && !c.clock.IsStale(cred.AccessToken) {
		return cred.AccessToken, nil
	}
	return c.coord.EnsureFreshToken(ctx, rejected)
}

func bearerToken(req *http.Request) string {
	h := req.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// replayable clones req and makes sure its body can be read again for a retry.
func replayable(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return out, nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return out, nil
}

// rewind returns a copy of req with a fresh body.
func rewind(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("request body is not rewindable")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func closeRequestBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

func closeResponseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, 1024*1024)
	_ = resp.Body.Close()
}
