package executor

import (
	"sync"
	"time"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// Claims records which opportunity ids the executor has taken on. An id is
// held from the moment its reconciliation starts. Once it settles on a
// terminal status it stays held for ttl, measured from settlement. Safe for
// concurrent use.
type Claims struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]claim
}

type claim struct {
	status    domain.ArbStatus // ArbStatusDetected until settled
	settledAt time.Time
}

// NewClaims creates a Claims that forgets settled ids after ttl.
func NewClaims(ttl time.Duration) *Claims {
	return &Claims{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]claim),
	}
}

// Claim takes id and reports true, or reports false when id is still being
// reconciled or settled less than ttl ago.
func (c *Claims) Claim(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[id]; ok && !c.expired(e, c.now()) {
		return false
	}
	c.entries[id] = claim{status: domain.ArbStatusDetected}
	return true
}

// Settle marks id as finished with status. A non-terminal status releases
// the claim instead.
func (c *Claims) Settle(id string, status domain.ArbStatus) {
	if !status.Terminal() {
		c.Release(id)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = claim{status: status, settledAt: c.now()}
}

// Release drops the claim on id so a redelivery can be reconciled.
func (c *Claims) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Status returns the recorded status of id. Ids still being reconciled
// report ArbStatusDetected.
func (c *Claims) Status(id string) (domain.ArbStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	return e.status, ok
}

// Len returns the number of held ids.
func (c *Claims) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup forgets settled ids older than ttl. In-flight claims are kept.
func (c *Claims) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
		}
	}
}

func (c *Claims) expired(e claim, now time.Time) bool {
	return e.status.Terminal() && now.Sub(e.settledAt) >= c.ttl
}
