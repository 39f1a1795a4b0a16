package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestExpiring(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewExpiring("v", time.Second, now)

	v, ok := e.Get(now)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	assert.True(t, e.Alive(now.Add(999*time.Millisecond)))
	assert.False(t, e.Alive(now.Add(time.Second)), "deadline itself is already expired")

	_, ok = e.Get(now.Add(2 * time.Second))
	assert.False(t, ok)
}

func TestAuthCacheLookupAndExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewAuthCache(30*time.Second, clock.Now)

	_, ok := c.Lookup("SUMP_TANK", "k1")
	assert.False(t, ok)

	c.Store("SUMP_TANK", "k1", "SUMP_TANK")

	id, ok := c.Lookup("SUMP_TANK", "k1")
	assert.True(t, ok)
	assert.Equal(t, "SUMP_TANK", id)

	_, ok = c.Lookup("SUMP_TANK", "other-key")
	assert.False(t, ok, "cache is keyed on the (device, key) pair")

	clock.Advance(31 * time.Second)
	_, ok = c.Lookup("SUMP_TANK", "k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats()["entries"])
}

func TestAuthCacheDisabled(t *testing.T) {
	c := NewAuthCache(0, nil)
	c.Store("a", "b", "a")
	_, ok := c.Lookup("a", "b")
	assert.False(t, ok)
}

func TestAuthCacheForgetAndSweep(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewAuthCache(10*time.Second, clock.Now)

	c.Store("A", "1", "A")
	c.Store("ESP32_A", "2", "A")
	c.Store("B", "1", "B")

	c.Forget("A")
	_, ok := c.Lookup("A", "1")
	assert.False(t, ok)
	_, ok = c.Lookup("ESP32_A", "2")
	assert.False(t, ok, "entries resolved to the device are dropped too")
	_, ok = c.Lookup("B", "1")
	assert.True(t, ok)

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Sweep())
}

func TestAuthCacheConcurrentAccess(t *testing.T) {
	c := NewAuthCache(time.Minute, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Store("dev", "key", "dev")
			_, _ = c.Lookup("dev", "key")
		}()
	}
	wg.Wait()

	_, ok := c.Lookup("dev", "key")
	assert.True(t, ok)
}
