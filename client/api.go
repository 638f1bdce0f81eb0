package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/habedi/gigsync/auth"
	"github.com/rs/zerolog/log"
)

// ErrNotLoggedIn is returned by operations that need a stored session.
var ErrNotLoggedIn = errors.New("not logged in")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API request failed with status %d", e.StatusCode)
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// apiMessage extracts the server's {"message": ...} field, falling back to def.
func apiMessage(body []byte, def string) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return def
}

// requestFunc builds a new request for every attempt so bodies are never shared between retries.
type requestFunc func(ctx context.Context) (*http.Request, error)

// send runs the request through the authenticating client.
// GET requests are retried on transport errors and server errors with exponential backoff.
func (c *Client) send(ctx context.Context, method string, build requestFunc) (*http.Response, error) {
	attempts := 1
	if method == http.MethodGet {
		attempts = c.cfg.MaxRetries
	}
	backoff := c.cfg.RetryBackoff

	var resp *http.Response
	var err error
	var target string
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var req *http.Request
		req, err = build(ctx)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("Failed to create request")
			return nil, err
		}
		target = req.URL.String()
		log.Debug().Str("method", req.Method).Str("url", target).Msg("Sending HTTP request")

		resp, err = c.http.Do(req)
		if err != nil {
			if !retryable(err) {
				return nil, err
			}
			log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", attempts).Msg("Request failed, retrying...")
			continue
		}
		if resp.StatusCode >= 500 && i < attempts-1 {
			log.Warn().Int("status", resp.StatusCode).Int("attempt", i+1).Int("max_attempts", attempts).Msg("Server error, retrying...")
			closeResponseBody(resp)
			continue
		}
		break
	}

	if err != nil {
		log.Error().Err(err).Str("method", method).Msg("Failed to send request after multiple retries")
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer closeResponseBody(resp)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    apiMessage(body, http.StatusText(resp.StatusCode)),
			Body:       string(body),
		}
		log.Debug().Str("method", method).Str("url", target).Int("status", resp.StatusCode).Msg("HTTP request returned non-OK status")
		return nil, apiErr
	}
	return resp, nil
}

// retryable excludes errors a second attempt cannot fix.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, auth.ErrAuthUnavailable), errors.Is(err, auth.ErrCoordinatorClosed):
		return false
	}
	return true
}

// do sends a request and decodes a JSON answer into out when out is non-nil.
func (c *Client) do(ctx context.Context, method string, build requestFunc, out interface{}) error {
	resp, err := c.send(ctx, method, build)
	if err != nil {
		return err
	}
	defer closeResponseBody(resp)

	if out == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read response body")
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	target := c.endpoint(path, query)
	return c.do(ctx, http.MethodGet, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// sendJSON sends payload as a JSON body; a nil payload sends no body.
func (c *Client) sendJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}
	target := c.endpoint(path, nil)
	return c.do(ctx, method, func(ctx context.Context) (*http.Request, error) {
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, body)
		if err != nil {
			return nil, err
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// sendMultipart sends a form with a JSON part named part and one "files" part per path.
func (c *Client) sendMultipart(ctx context.Context, method, path, part string, payload interface{}, files []string, out interface{}) error {
	body, contentType, err := encodeMultipart(part, payload, files)
	if err != nil {
		return err
	}
	target := c.endpoint(path, nil)
	return c.do(ctx, method, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

func encodeMultipart(part string, payload interface{}, files []string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename="blob"`, part))
	h.Set("Content-Type", "application/json")
	pw, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := pw.Write(data); err != nil {
		return nil, "", err
	}

	for _, p := range files {
		if err := attachFile(w, p); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func attachFile(w *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open attachment: %w", err)
	}
	defer f.Close()

	fw, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	return nil
}
