package x402

import (
	"sync"
	"time"
)

// NonceRegistry remembers issued authorization nonces until the
// authorization they belong to has expired. The client uses it to guarantee
// that no two live authorizations share a nonce; the paywall uses it to
// reject replays.
type NonceRegistry struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time
}

// RegistryOption configures a NonceRegistry
type RegistryOption func(*NonceRegistry)

// WithRegistryClock sets the clock used to decide whether a nonce has
// expired. It must agree with the clock that builds or checks the
// validity window.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *NonceRegistry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewNonceRegistry creates an empty registry.
func NewNonceRegistry(opts ...RegistryOption) *NonceRegistry {
	r := &NonceRegistry{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reserve records nonce as used until expiresAt. It returns false if the
// nonce is already reserved and not yet expired.
func (r *NonceRegistry) Reserve(nonce string, expiresAt time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if exp, exists := r.expiry[nonce]; exists && now.Before(exp) {
		return false
	}

	r.expiry[nonce] = expiresAt

	// Lazy cleanup of expired entries
	r.cleanupExpiredLocked(now)
	return true
}

// Release forgets a nonce, for an attempt that never left the client.
func (r *NonceRegistry) Release(nonce string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expiry, nonce)
}

// Contains reports whether nonce is currently reserved.
func (r *NonceRegistry) Contains(nonce string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, exists := r.expiry[nonce]
	if !exists {
		return false
	}
	if !r.now().Before(exp) {
		delete(r.expiry, nonce)
		return false
	}
	return true
}

// Len returns the number of tracked nonces, expired ones included until the
// next cleanup.
func (r *NonceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expiry)
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (r *NonceRegistry) cleanupExpiredLocked(now time.Time) {
	for nonce, exp := range r.expiry {
		if !now.Before(exp) {
			delete(r.expiry, nonce)
		}
	}
}
