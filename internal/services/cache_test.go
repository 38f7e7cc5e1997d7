package services

import (
	"context"
	"testing"
	"time"

	"reftrack/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffiliateCache_Degrades(t *testing.T) {
	ctx := context.Background()

	t.Run("Nil Cache", func(t *testing.T) {
		var c *AffiliateCache
		_, ok := c.Get(ctx, "aff-1")
		assert.False(t, ok)
		assert.NotPanics(t, func() {
			c.Set(ctx, &models.Affiliate{UniqueIdentifier: "aff-1"})
			c.Invalidate(ctx, "aff-1")
		})
	})

	t.Run("Unreachable Redis Is A Miss", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
			MaxRetries:  -1,
		})
		defer rdb.Close()

		c := NewAffiliateCache(rdb, time.Minute, discardLogger())
		c.Set(ctx, &models.Affiliate{UniqueIdentifier: "aff-1"})
		_, ok := c.Get(ctx, "aff-1")
		assert.False(t, ok)
	})
}

func TestLifecycle_RedirectWithUnreachableCache(t *testing.T) {
	env := newTestEnv(t)
	env.affiliate(t, 1, "aff-1", nil)

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	env.lifecycle.cache = NewAffiliateCache(rdb, time.Minute, discardLogger())

	ref, target, err := env.lifecycle.TrackRedirect(context.Background(), RedirectRequest{AffiliateIdentifier: "aff-1"})
	require.NoError(t, err)
	assert.Contains(t, target, "ref="+ref.ReferralCode)
}
