package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocalCache(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c := NewLocalCache[[]string](2, time.Minute)
	defer c.Close()
	c.now = func() time.Time { return now }

	c.Set("governed", []string{"a@example.com"}, 0)
	v, ok := c.Get("governed")
	assert.True(t, ok)
	assert.Equal(t, []string{"a@example.com"}, v)

	t.Run("过期", func(t *testing.T) {
		c.Set("short", []string{"x"}, time.Second)
		now = now.Add(2 * time.Second)
		_, ok := c.Get("short")
		assert.False(t, ok)
		_, ok = c.Get("governed")
		assert.True(t, ok)
	})

	t.Run("容量上限淘汰最早过期的条目", func(t *testing.T) {
		c.Clear()
		c.Set("first", nil, time.Second)
		c.Set("second", nil, time.Hour)
		c.Set("third", nil, time.Hour)

		assert.Equal(t, 2, c.Len())
		_, ok := c.Get("first")
		assert.False(t, ok)
		_, ok = c.Get("third")
		assert.True(t, ok)
	})

	t.Run("清理过期条目", func(t *testing.T) {
		c.Clear()
		c.Set("old", nil, time.Second)
		now = now.Add(time.Minute)
		c.removeExpired()
		assert.Equal(t, 0, c.Len())
	})

	c.Delete("missing")
	c.Close()
	c.Close()
}
