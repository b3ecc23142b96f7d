package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time          { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newClaimsAt(ttl time.Duration) (*Claims, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	c := NewClaims(ttl)
	c.now = clock.now
	return c, clock
}

func TestClaims_Claim(t *testing.T) {
	c, _ := newClaimsAt(time.Minute)

	assert.True(t, c.Claim("a"))
	assert.False(t, c.Claim("a"))
	assert.True(t, c.Claim("b"))
	assert.Equal(t, 2, c.Len())

	status, ok := c.Status("a")
	assert.True(t, ok)
	assert.Equal(t, domain.ArbStatusDetected, status)
}

func TestClaims_InFlightNeverExpires(t *testing.T) {
	c, clock := newClaimsAt(time.Millisecond)

	assert.True(t, c.Claim("a"))
	clock.advance(time.Hour)
	assert.False(t, c.Claim("a"))

	c.Cleanup()
	assert.Equal(t, 1, c.Len())
}

func TestClaims_SettledHeldUntilTTLAfterSettlement(t *testing.T) {
	c, clock := newClaimsAt(time.Minute)

	assert.True(t, c.Claim("a"))
	clock.advance(50 * time.Second)
	c.Settle("a", domain.ArbStatusCancelled)

	// Measured from settlement, not from the first claim.
	clock.advance(30 * time.Second)
	assert.False(t, c.Claim("a"))
	status, _ := c.Status("a")
	assert.Equal(t, domain.ArbStatusCancelled, status)

	clock.advance(30 * time.Second)
	assert.True(t, c.Claim("a"))
}

func TestClaims_RejectionDoesNotExtendHold(t *testing.T) {
	c, clock := newClaimsAt(time.Minute)

	c.Claim("a")
	c.Settle("a", domain.ArbStatusCompleted)
	for i := 0; i < 5; i++ {
		clock.advance(20 * time.Second)
		c.Claim("a")
	}
	status, _ := c.Status("a")
	assert.Equal(t, domain.ArbStatusDetected, status, "reclaimed once the hold lapsed")
}

func TestClaims_ReleaseAllowsRetry(t *testing.T) {
	c, _ := newClaimsAt(time.Minute)

	assert.True(t, c.Claim("a"))
	c.Release("a")
	assert.True(t, c.Claim("a"))

	c.Settle("a", domain.ArbStatusDetected)
	_, ok := c.Status("a")
	assert.False(t, ok, "non-terminal settle releases")
}

func TestClaims_Cleanup(t *testing.T) {
	c, clock := newClaimsAt(time.Minute)
	c.Claim("done")
	c.Settle("done", domain.ArbStatusAdjusted)
	c.Claim("running")

	clock.advance(time.Minute)
	c.Cleanup()

	_, ok := c.Status("done")
	assert.False(t, ok)
	_, ok = c.Status("running")
	assert.True(t, ok)
}
