package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClock(start time.Time) (*time.Time, func() time.Time) {
	current := start
	return &current, func() time.Time { return current }
}

func TestGetRenewsIdleWindow(t *testing.T) {
	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	clock, now := newTestClock(start)

	c := NewLRU[string](10, 30*time.Minute)
	c.now = now

	c.Set("alice@mail.com", "alice")

	// Touch the entry every 20 minutes; the idle window keeps sliding.
	for i := 0; i < 4; i++ {
		*clock = clock.Add(20 * time.Minute)
		v, ok := c.Get("alice@mail.com")
		require.True(t, ok, "touch %d", i)
		require.Equal(t, "alice", v)
	}

	// Now leave it alone past the window.
	*clock = clock.Add(31 * time.Minute)
	_, ok := c.Get("alice@mail.com")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}

func TestSetUntilIsNotExtendedByReads(t *testing.T) {
	start := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	clock, now := newTestClock(start)

	c := NewLRU[string](0, time.Hour)
	c.now = now

	deadline := start.Add(10 * time.Minute)
	c.SetUntil("bob@mail.com", "token-1", deadline)

	*clock = clock.Add(9 * time.Minute)
	_, ok := c.Get("bob@mail.com")
	require.True(t, ok, "read inside the deadline must hit")

	// The read above must not have pushed the deadline out.
	*clock = deadline
	_, ok = c.Get("bob@mail.com")
	require.False(t, ok, "the deadline instant itself is already expired")
}

func TestCapacityEvictsLeastRecentlyAccessed(t *testing.T) {
	c := NewLRU[int](2, time.Hour)

	c.Set("a", 1)
	c.Set("b", 2)

	// Touch "a" so "b" is the least recently accessed.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3)

	_, ok = c.Get("b")
	require.False(t, ok, "b should have been evicted by capacity pressure")
	_, ok = c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestDeleteAndOverwrite(t *testing.T) {
	c := NewLRU[int](4, time.Hour)

	c.Set("k", 1)
	c.Set("k", 2)
	require.Equal(t, 1, c.Len())

	v, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, 2, v)

	c.Delete("k")
	_, ok = c.Get("k")
	require.False(t, ok)

	c.Delete("k") // deleting an absent key is a no-op
}
