package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCacheTTL(t *testing.T) {
	cache := newResponseCache(60 * time.Second)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Set("k", []byte("v"))

	body, ok := cache.Get("k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), body)

	// Still fresh just inside the TTL.
	now = now.Add(59 * time.Second)
	_, ok = cache.Get("k")
	assert.True(t, ok)

	// Expired past the TTL.
	now = now.Add(2 * time.Second)
	_, ok = cache.Get("k")
	assert.False(t, ok)
}

func TestResponseCacheClear(t *testing.T) {
	cache := newResponseCache(60 * time.Second)
	cache.Set("a", []byte("1"))
	cache.Set("b", []byte("2"))

	cache.Clear()

	_, ok := cache.Get("a")
	assert.False(t, ok)
	_, ok = cache.Get("b")
	assert.False(t, ok)
}

func TestResponseCacheMiss(t *testing.T) {
	cache := newResponseCache(60 * time.Second)
	_, ok := cache.Get("missing")
	assert.False(t, ok)
}
