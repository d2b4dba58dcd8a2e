package x402

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestRegistry(now *time.Time) *NonceRegistry {
	return NewNonceRegistry(WithRegistryClock(func() time.Time { return *now }))
}

func TestNonceRegistry_ReserveRejectsLiveNonce(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := newTestRegistry(&now)

	if !r.Reserve("0x01", now.Add(time.Minute)) {
		t.Fatal("Expected first reservation to succeed")
	}
	if r.Reserve("0x01", now.Add(time.Minute)) {
		t.Error("Expected second reservation of a live nonce to fail")
	}
	if !r.Contains("0x01") {
		t.Error("Expected nonce to be reserved")
	}
}

func TestNonceRegistry_ExpiredNonceIsReusable(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := newTestRegistry(&now)

	r.Reserve("0x01", now.Add(time.Minute))

	now = now.Add(time.Minute)
	if r.Contains("0x01") {
		t.Error("Expected nonce to expire at its deadline")
	}
	if !r.Reserve("0x01", now.Add(time.Minute)) {
		t.Error("Expected expired nonce to be reservable again")
	}
}

func TestNonceRegistry_Release(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := newTestRegistry(&now)

	r.Reserve("0x01", now.Add(time.Minute))
	r.Release("0x01")

	if r.Contains("0x01") {
		t.Error("Expected released nonce to be forgotten")
	}
	if !r.Reserve("0x01", now.Add(time.Minute)) {
		t.Error("Expected released nonce to be reservable")
	}
}

func TestNonceRegistry_CleanupOnReserve(t *testing.T) {
	now := time.Unix(1700000000, 0)
	r := newTestRegistry(&now)

	for i := 0; i < 10; i++ {
		r.Reserve(fmt.Sprintf("0x%02x", i), now.Add(time.Second))
	}
	if r.Len() != 10 {
		t.Fatalf("Expected 10 entries, got %d", r.Len())
	}

	now = now.Add(2 * time.Second)
	r.Reserve("0xff", now.Add(time.Second))

	if r.Len() != 1 {
		t.Errorf("Expected expired entries to be cleaned up, got %d", r.Len())
	}
}

func TestNonceRegistry_ConcurrentReserve(t *testing.T) {
	r := NewNonceRegistry()
	expires := time.Now().Add(time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Reserve("0xdead", expires) {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Errorf("Expected exactly one reservation to win, got %d", granted)
	}
}

func TestNonceRegistry_ClockDecidesExpiry(t *testing.T) {
	// Far in the past relative to the wall clock.
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	if !r.Reserve("0x0a", now.Add(time.Minute)) {
		t.Fatal("Expected first reservation to succeed")
	}
	if r.Reserve("0x0a", now.Add(time.Minute)) {
		t.Error("Expected replay under the injected clock to fail")
	}

	now = now.Add(2 * time.Minute)
	if r.Contains("0x0a") {
		t.Error("Expected nonce to expire once the injected clock passes it")
	}
}
