// Package catalog serves product lookups for the scanning surface.
//
// Snapshots may be served from cache and can lag behind committed stock. They
// are advisory only: checkout re-reads every product inside its own unit of
// work.
package catalog

import (
	"context"
	"log"
	"strings"
	"time"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type Reader interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
}

type Lookup struct {
	repo  Reader
	cache cache.ProductCache
	ttl   time.Duration
}

func NewLookup(repo Reader, productCache cache.ProductCache, ttl time.Duration) *Lookup {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lookup{repo: repo, cache: productCache, ttl: ttl}
}

func barcodeKey(code string) string { return "catalog:barcode:" + code }

func idKey(id string) string { return "catalog:id:" + id }

func (l *Lookup) FindByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, store.ErrNotFound
	}
	return l.find(ctx, barcodeKey(code), func(ctx context.Context) (*domain.Product, error) {
		return l.repo.GetProductByBarcode(ctx, code)
	})
}

func (l *Lookup) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, store.ErrNotFound
	}
	return l.find(ctx, idKey(id), func(ctx context.Context) (*domain.Product, error) {
		return l.repo.GetProduct(ctx, id)
	})
}

func (l *Lookup) find(ctx context.Context, key string, load func(context.Context) (*domain.Product, error)) (*domain.Product, error) {
	cached, found, err := l.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[catalog] cache get %s failed: %v", key, err)
	}
	if found {
		return cached, nil
	}

	product, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.cache.Set(ctx, key, product, l.ttl); err != nil {
		log.Printf("[catalog] cache set %s failed: %v", key, err)
	}
	return product, nil
}

// Invalidate drops cached snapshots after their stock or price changed.
func (l *Lookup) Invalidate(ctx context.Context, products ...domain.Product) {
	keys := make([]string, 0, len(products)*2)
	for _, p := range products {
		keys = append(keys, idKey(p.ID))
		if p.Barcode != "" {
			keys = append(keys, barcodeKey(p.Barcode))
		}
	}
	if len(keys) == 0 {
		return
	}
	if err := l.cache.Delete(ctx, keys...); err != nil {
		log.Printf("[catalog] cache invalidate failed: %v", err)
	}
}
