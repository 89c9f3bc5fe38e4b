package statuspage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackalert/stackalert/internal/domain"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(2 * time.Minute)

	assert.Nil(t, c.Get("github"))

	data := &domain.LiveServiceStatus{Slug: "github", Status: domain.StatusOperational}
	c.Set("github", data)

	got := c.Get("github")
	require.NotNil(t, got)
	assert.Same(t, data, got)

	assert.Nil(t, c.Get("slack"))
}

func TestCache_Expiry(t *testing.T) {
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := NewCache(2 * time.Minute)
	c.now = func() time.Time { return clock }

	c.Set("github", &domain.LiveServiceStatus{Slug: "github"})

	clock = clock.Add(119 * time.Second)
	assert.NotNil(t, c.Get("github"))

	clock = clock.Add(1 * time.Second)
	assert.Nil(t, c.Get("github"), "entry at exactly ttl is expired")

	// Eviction happened on read, not just a nil return.
	clock = clock.Add(-1 * time.Minute)
	assert.Nil(t, c.Get("github"))
}

func TestCache_SetOverwrites(t *testing.T) {
	clock := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	c := NewCache(2 * time.Minute)
	c.now = func() time.Time { return clock }

	c.Set("github", &domain.LiveServiceStatus{Slug: "github", Status: domain.StatusOperational})

	clock = clock.Add(90 * time.Second)
	fresh := &domain.LiveServiceStatus{Slug: "github", Status: domain.StatusMajorOutage}
	c.Set("github", fresh)

	// The rewrite reset the expiry window.
	clock = clock.Add(90 * time.Second)
	got := c.Get("github")
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusMajorOutage, got.Status)
}
