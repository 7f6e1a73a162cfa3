// Package validator caches and asynchronously refreshes the validity of
// the current session's access token. Callers never block: Status
// returns the best-known answer immediately and kicks a background check
// when the cache is stale.
package validator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wintermelt/minecraft_session_keeper/internal/session"
)

// Status is the cached validity of the current access token. Exactly one
// status is current at a time; Refreshing is the transient state callers
// see while a background check is in flight.
type Status int

const (
	StatusUnknown Status = iota
	StatusRefreshing
	StatusValid
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// CacheTTL is how long a verdict is trusted before the next Status call
// re-checks.
const CacheTTL = 5 * time.Minute

// TokenChecker is the narrow port onto an identity provider's validity
// endpoint. Implementations exist per account type (yggdrasil validate
// for legacy, the Minecraft services profile endpoint for Microsoft).
type TokenChecker interface {
	CheckToken(ctx context.Context, accessToken string) (bool, error)
}

// CheckerFunc adapts a function to TokenChecker.
type CheckerFunc func(ctx context.Context, accessToken string) (bool, error)

func (f CheckerFunc) CheckToken(ctx context.Context, accessToken string) (bool, error) {
	return f(ctx, accessToken)
}

// Validator owns the status cache for the store's current session.
type Validator struct {
	store    *session.Store
	checkers map[session.AccountType]TokenChecker
	logger   *slog.Logger

	// checkTimeout bounds each background provider call.
	checkTimeout time.Duration

	mu        sync.Mutex
	status    Status
	lastCheck time.Time
	waiters   []chan struct{}

	// now is swapped out by tests.
	now func() time.Time
}

// New creates a validator reading the current session from store. The
// validator registers itself on the store so a session swap drops the
// cached verdict.
func New(store *session.Store, checkers map[session.AccountType]TokenChecker, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := &Validator{
		store:        store,
		checkers:     checkers,
		logger:       logger,
		checkTimeout: 30 * time.Second,
		status:       StatusUnknown,
		now:          time.Now,
	}
	store.OnReplace(func(session.Session) { v.Reset() })
	return v
}

// Status returns the cached validity without blocking. force, or cache
// expiry, invalidates the verdict and dispatches an asynchronous
// re-check; callers observe StatusRefreshing until it lands.
func (v *Validator) Status(force bool) Status {
	v.mu.Lock()
	defer v.mu.Unlock()

	if force || v.now().Sub(v.lastCheck) >= CacheTTL {
		v.status = StatusUnknown
	}

	if v.status == StatusUnknown {
		// The Refreshing gate keeps at most one check outstanding.
		v.status = StatusRefreshing
		v.lastCheck = v.now()

		// Read the token at dispatch time so a slow check never sees a
		// session swapped in later.
		current := v.store.Current()
		go v.check(current)
	}

	return v.status
}

// Reset drops the cached verdict; the next Status call re-checks.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.status = StatusUnknown
	v.lastCheck = time.Time{}
	v.notify()
}

// Settled returns a channel closed when the in-flight check lands or is
// abandoned by a Reset. With no check in flight it is already closed.
func (v *Validator) Settled() <-chan struct{} {
	v.mu.Lock()
	defer v.mu.Unlock()

	ch := make(chan struct{})
	if v.status != StatusRefreshing {
		close(ch)
		return ch
	}
	v.waiters = append(v.waiters, ch)
	return ch
}

// notify releases Settled waiters. Callers hold v.mu.
func (v *Validator) notify() {
	for _, ch := range v.waiters {
		close(ch)
	}
	v.waiters = nil
}

func (v *Validator) check(current session.Session) {
	valid := false

	checker, ok := v.checkers[current.Type]
	if !ok {
		v.logger.Debug("no validity checker for account type", "type", current.Type.String())
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), v.checkTimeout)
		defer cancel()

		ok, err := checker.CheckToken(ctx, current.AccessToken)
		if err != nil {
			// Fail closed: an unreachable provider reads as invalid.
			v.logger.Error("session validity check failed", "error", err)
		}
		valid = ok && err == nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// A Reset (session swap) while the check was in flight wins; do not
	// overwrite it with a verdict about the old token.
	if v.status != StatusRefreshing {
		return
	}

	if valid {
		v.status = StatusValid
	} else {
		v.status = StatusInvalid
	}
	v.lastCheck = v.now()
	v.notify()
}
