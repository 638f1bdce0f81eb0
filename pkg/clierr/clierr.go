package clierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/habedi/gigsync/auth"
	"github.com/habedi/gigsync/client"
)

// Type categorizes a CLI-facing error for consistent messaging & potential exit codes.
type Type string

const (
	Validation Type = "validation"
	NotFound   Type = "not_found"
	Auth       Type = "auth"
	Network    Type = "network"
	Internal   Type = "internal"
)

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

const (
	msgSessionExpired = "Session expired. Please run 'gigsync login' again."
	msgNotLoggedIn    = "Not logged in. Run 'gigsync login'."
)

// FromAPI turns an error from the client or auth packages into a message fit for the terminal.
func FromAPI(err error) *Error {
	if err == nil {
		return nil
	}
	var cliErr *Error
	if errors.As(err, &cliErr) {
		return cliErr
	}

	switch {
	case errors.Is(err, auth.ErrSessionExpired):
		return New(Auth, msgSessionExpired, err)
	case errors.Is(err, client.ErrNotLoggedIn):
		return New(Auth, msgNotLoggedIn, err)
	case errors.Is(err, auth.ErrAuthUnavailable):
		return New(Network, "Could not renew the session right now. Your login is kept; try again shortly.", err)
	case errors.Is(err, context.DeadlineExceeded):
		return New(Network, "The server took too long to answer.", err)
	case errors.Is(err, context.Canceled):
		return New(Internal, "Operation cancelled.", err)
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized:
			return New(Auth, msgNotLoggedIn, err)
		case apiErr.StatusCode == http.StatusForbidden:
			return New(Auth, "Permission denied: "+apiErr.Message, err)
		case apiErr.StatusCode == http.StatusNotFound:
			return New(NotFound, "Not found: "+apiErr.Message, err)
		case apiErr.StatusCode >= 500:
			return New(Network, fmt.Sprintf("Server error (%d): %s", apiErr.StatusCode, apiErr.Message), err)
		default:
			return New(Validation, apiErr.Message, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return New(Network, "Could not reach the server: "+err.Error(), err)
	}
	return New(Internal, err.Error(), err)
}
