package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/habedi/gigsync/db"
	"github.com/rs/zerolog/log"
)

// DefaultRefreshTimeout bounds a single refresh call so queued requests cannot wait forever.
const DefaultRefreshTimeout = 10 * time.Second

// CoordinatorOptions tunes a Coordinator.
type CoordinatorOptions struct {
	RefreshTimeout time.Duration
	// OnSessionEnded is called once per refresh cycle that ends the session, before waiters resume.
	// It must not block.
	OnSessionEnded func(reason error)
}

type refreshOutcome struct {
	token string
	err   error
}

type waiter struct {
	seen string
	ch   chan refreshOutcome
}

// maxSettled bounds how many superseded tokens are remembered.
const maxSettled = 256

// Coordinator makes sure only one token refresh is in flight at a time.
// Callers arriving during a refresh are queued and all of them receive the same outcome.
type Coordinator struct {
	store          CredentialStore
	refresher      TokenRefresher
	timeout        time.Duration
	onSessionEnded func(error)

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	refreshing bool
	closed     bool
	waiters    []waiter

	// settled holds tokens already replaced or rejected by a finished cycle; last is that cycle's outcome.
	settled map[string]struct{}
	last    refreshOutcome

	refreshes atomic.Int64
}

// NewCoordinator is the constructor for the refresh coordinator.
func NewCoordinator(store CredentialStore, refresher TokenRefresher, opts CoordinatorOptions) *Coordinator {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:          store,
		refresher:      refresher,
		timeout:        opts.RefreshTimeout,
		onSessionEnded: opts.OnSessionEnded,
		ctx:            ctx,
		cancel:         cancel,
		settled:        make(map[string]struct{}),
	}
}

// EnsureFreshToken returns a newly refreshed access token to replace seen, the token the caller holds.
// If a refresh is already running the caller waits for its outcome instead of starting another one.
// If a finished refresh already replaced seen, its outcome is returned without another network call,
// so a caller that read the store just before that refresh completed neither refreshes twice nor
// ends the session twice. An empty seen always refreshes.
// The refresh itself is not tied to ctx: a caller giving up does not fail the other waiters.
func (c *Coordinator) EnsureFreshToken(ctx context.Context, seen string) (string, error) {
	ch := make(chan refreshOutcome, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrCoordinatorClosed
	}
	if !c.refreshing && seen != "" {
		if _, ok := c.settled[seen]; ok {
			out := c.last
			c.mu.Unlock()
			log.Debug().Msg("Token was already replaced by a finished refresh")
			return out.token, out.err
		}
	}
	c.waiters = append(c.waiters, waiter{seen: seen, ch: ch})
	leader := !c.refreshing
	c.refreshing = true
	c.mu.Unlock()

	if leader {
		go c.refresh()
	} else {
		log.Debug().Msg("Token refresh already in progress, waiting")
	}

	select {
	case out := <-ch:
		return out.token, out.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Refreshes reports how many refresh calls have been made.
func (c *Coordinator) Refreshes() int64 {
	return c.refreshes.Load()
}

// Waiting reports how many callers are queued on the refresh in flight.
func (c *Coordinator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

// Close cancels any running refresh and fails every queued caller with ErrCoordinatorClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	c.cancel()
	for _, w := range waiters {
		w.ch <- refreshOutcome{err: ErrCoordinatorClosed}
	}
}

func (c *Coordinator) refresh() {
	n := c.refreshes.Add(1)
	log.Info().Int64("refreshes", n).Msg("Access token is stale or rejected, refreshing...")

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	res, err := c.refresher.Refresh(ctx)
	if err == nil && res.AccessToken == "" {
		err = errors.New("refresh response carried no access token")
	}
	if err != nil {
		if c.ctx.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = &RefreshError{Err: fmt.Errorf("refresh timed out after %s: %w", c.timeout, err)}
		}
		c.fail(err)
		return
	}

	if err := c.persist(res); err != nil {
		c.fail(fmt.Errorf("failed to save refreshed token: %w", err))
		return
	}
	log.Info().Msg("Token refreshed and saved successfully.")
	c.release(refreshOutcome{token: res.AccessToken}, true)
}

// persist writes the new token over whatever the store holds now, keeping the user fields.
// It runs even after Close so a rotated session cookie is not lost.
func (c *Coordinator) persist(res RefreshResult) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.timeout)
	defer cancel()

	cred, err := c.store.Get(ctx)
	if err != nil {
		return err
	}
	updated := cred
	if updated == nil {
		updated = new(db.Credential)
	} else {
		copied := *cred
		updated = &copied
	}
	updated.AccessToken = res.AccessToken
	if res.SessionCookie != "" {
		updated.SessionCookie = res.SessionCookie
	}
	return c.store.Upsert(ctx, updated)
}

func (c *Coordinator) fail(err error) {
	if c.ctx.Err() != nil {
		c.release(refreshOutcome{err: ErrCoordinatorClosed}, false)
		return
	}

	rerr := asRefreshError(err)
	if !rerr.Terminal {
		log.Warn().Err(rerr).Msg("Token refresh failed, credentials kept for a later attempt")
		c.release(refreshOutcome{err: rerr}, false)
		return
	}

	log.Warn().Err(rerr).Msg("Session rejected by the server, clearing credentials")
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if clearErr := c.store.Clear(ctx); clearErr != nil {
		log.Error().Err(clearErr).Msg("Failed to clear credentials")
	}
	if c.onSessionEnded != nil {
		c.onSessionEnded(rerr)
	}
	c.release(refreshOutcome{err: rerr}, true)
}

// release returns to idle and hands the outcome to every waiter in arrival order.
// A settled outcome is also remembered for callers still holding one of the replaced tokens.
func (c *Coordinator) release(out refreshOutcome, settle bool) {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	if settle {
		if len(c.settled) > maxSettled {
			c.settled = make(map[string]struct{})
		}
		for _, w := range waiters {
			if w.seen != "" && w.seen != out.token {
				c.settled[w.seen] = struct{}{}
			}
		}
		delete(c.settled, out.token)
		c.last = out
	}
	c.mu.Unlock()

	for _, w := range waiters {
		w.ch <- out
	}
}
