package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/domain"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, *RedisProductCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisProductCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedisProductCacheRoundTrip(t *testing.T) {
	_, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, found, err := c.Get(ctx, "catalog:id:prd-1")
	require.NoError(t, err)
	assert.False(t, found)

	product := &domain.Product{ID: "prd-1", Name: "Ground Coffee", SellingPriceCents: 899, Stock: 4}
	require.NoError(t, c.Set(ctx, "catalog:id:prd-1", product, time.Minute))

	got, found, err := c.Get(ctx, "catalog:id:prd-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Ground Coffee", got.Name)
	assert.Equal(t, int64(899), got.SellingPriceCents)
}

func TestRedisProductCacheExpiresAndDeletes(t *testing.T) {
	mr, c := newTestCache(t)
	ctx := context.Background()

	product := &domain.Product{ID: "prd-2", Name: "Tea"}
	require.NoError(t, c.Set(ctx, "catalog:id:prd-2", product, time.Second))
	require.NoError(t, c.Set(ctx, "catalog:barcode:123", product, time.Minute))

	mr.FastForward(2 * time.Second)
	_, found, err := c.Get(ctx, "catalog:id:prd-2")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Delete(ctx, "catalog:barcode:123", "catalog:id:prd-2"))
	assert.False(t, mr.Exists("catalog:barcode:123"))
}

func TestRedisProductCacheSurfacesConnectionErrors(t *testing.T) {
	mr, c := newTestCache(t)
	mr.Close()

	_, found, err := c.Get(context.Background(), "catalog:id:prd-3")
	assert.Error(t, err)
	assert.False(t, found)
}
