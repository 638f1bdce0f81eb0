package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionExpired means the refresh endpoint rejected the session; the user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshFailed means a refresh attempt failed for a reason that may go away on its own.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrAuthUnavailable is returned for requests that could not be given a valid token.
	ErrAuthUnavailable = errors.New("authentication unavailable")
	// ErrCoordinatorClosed is returned once the owning client has been closed.
	ErrCoordinatorClosed = errors.New("refresh coordinator closed")
)

// RefreshError describes a failed refresh call.
// Terminal errors match ErrSessionExpired, all others match ErrRefreshFailed.
type RefreshError struct {
	Terminal   bool
	StatusCode int
	Err        error
}

func (e *RefreshError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	msg := fmt.Sprintf("%s refresh failure", kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RefreshError) Unwrap() error { return e.Err }

// Is lets errors.Is match a RefreshError against the two sentinel kinds.
func (e *RefreshError) Is(target error) bool {
	if e.Terminal {
		return target == ErrSessionExpired
	}
	return target == ErrRefreshFailed
}

// IsTerminal reports whether err ends the session.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// asRefreshError normalizes whatever a refresher returned into a *RefreshError.
func asRefreshError(err error) *RefreshError {
	var re *RefreshError
	if errors.As(err, &re) {
		return re
	}
	return &RefreshError{Err: err}
}
