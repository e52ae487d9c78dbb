// Package store provides the two-scope key-value persistence behind each tab.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Scope selects the lifetime of a stored value.
type Scope int

const (
	// ScopeSession values expire once the tab has been idle for the session TTL.
	ScopeSession Scope = iota
	// ScopeDurable values survive across sessions.
	ScopeDurable
)

// String returns the scope's storage prefix.
func (s Scope) String() string {
	switch s {
	case ScopeSession:
		return "session"
	case ScopeDurable:
		return "durable"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ErrUnknownScope is returned for a Scope value outside the defined set.
var ErrUnknownScope = errors.New("unknown storage scope")

// KV defines the interface for a scoped key-value backend.
type KV interface {
	// Get returns the value for key, or found=false when absent or expired.
	Get(ctx context.Context, scope Scope, namespace, key string) (value string, found bool, err error)

	// Set stores value under key. Session-scope writes refresh the expiry.
	Set(ctx context.Context, scope Scope, namespace, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, scope Scope, namespace, key string) error

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Expirer is implemented by backends that need an external sweep to purge
// expired session-scope values.
type Expirer interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func validScope(s Scope) error {
	if s != ScopeSession && s != ScopeDurable {
		return fmt.Errorf("%w: %d", ErrUnknownScope, int(s))
	}
	return nil
}
