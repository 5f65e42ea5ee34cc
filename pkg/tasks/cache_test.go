package tasks

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache(10, time.Minute)

	c.Set("card", map[string]string{"name": "govern"})
	v, ok := c.Get("card")
	require.True(t, ok)
	assert.Equal(t, map[string]string{"name": "govern"}, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestTTLCache_Expiry(t *testing.T) {
	c := NewTTLCache(10, time.Minute)

	c.SetWithTTL("poll:bot-1", "tools", 10*time.Millisecond)
	_, ok := c.Get("poll:bot-1")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("poll:bot-1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is dropped on Get")
}

func TestTTLCache_EvictsOldestAtCapacity(t *testing.T) {
	c := NewTTLCache(3, time.Minute)

	for i := 0; i < 3; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
		time.Sleep(time.Millisecond)
	}
	c.Set("k3", 3)

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get("k0")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get("k3")
	assert.True(t, ok)
}

func TestTTLCache_UpdateDoesNotEvict(t *testing.T) {
	c := NewTTLCache(2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)

	assert.Equal(t, 2, c.Len())
	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)
}

func TestTTLCache_Invalidate(t *testing.T) {
	c := NewTTLCache(10, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Invalidate("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())
}
