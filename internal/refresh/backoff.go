// Package refresh keeps tracked holdings and mint stats current by polling
// the providers on per-second ticks under per-tick request budgets.
package refresh

import (
	"sync"
	"time"
)

// Backoff is a provider-wide gate opened on rate limiting. While active,
// every loop using that provider skips its ticks. One Backoff is shared by
// all loops that talk to the same provider.
type Backoff struct {
	mu    sync.Mutex
	until time.Time
	now   func() time.Time
}

// NewBackoff creates an inactive backoff gate.
func NewBackoff() *Backoff {
	return &Backoff{now: time.Now}
}

// SetNowFunc overrides the clock. Test hook.
func (b *Backoff) SetNowFunc(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// Active reports whether the gate is currently closed.
func (b *Backoff) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.until)
}

// Open closes the gate for d from now.
func (b *Backoff) Open(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.until = b.now().Add(d)
}
