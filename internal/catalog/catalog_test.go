package catalog

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpos/backend/internal/cache"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

type countingReader struct {
	products map[string]domain.Product
	calls    int
}

func (r *countingReader) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	r.calls++
	p, ok := r.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (r *countingReader) GetProductByBarcode(_ context.Context, code string) (*domain.Product, error) {
	r.calls++
	for _, p := range r.products {
		if p.Barcode == code {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func TestLookupServesRepeatScansFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache := cache.NewRedisProductCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = redisCache.Close() })

	reader := &countingReader{products: map[string]domain.Product{
		"prd-1": {ID: "prd-1", Name: "Coffee", Barcode: "8991234500017", Stock: 3},
	}}
	lookup := NewLookup(reader, redisCache, time.Minute)
	ctx := context.Background()

	for range 3 {
		p, err := lookup.FindByBarcode(ctx, "8991234500017")
		require.NoError(t, err)
		assert.Equal(t, "Coffee", p.Name)
	}
	assert.Equal(t, 1, reader.calls)

	lookup.Invalidate(ctx, domain.Product{ID: "prd-1", Barcode: "8991234500017"})
	_, err := lookup.FindByBarcode(ctx, "8991234500017")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.calls)
}

func TestLookupMissingProduct(t *testing.T) {
	lookup := NewLookup(&countingReader{products: map[string]domain.Product{}}, nil, 0)

	_, err := lookup.FindByID(context.Background(), "prd-none")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	_, err = lookup.FindByBarcode(context.Background(), "  ")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestLookupFallsBackWhenCacheIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	redisCache := cache.NewRedisProductCache(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = redisCache.Close() })
	mr.Close()

	reader := &countingReader{products: map[string]domain.Product{"prd-1": {ID: "prd-1", Name: "Coffee"}}}
	p, err := NewLookup(reader, redisCache, time.Minute).FindByID(context.Background(), "prd-1")
	require.NoError(t, err)
	assert.Equal(t, "Coffee", p.Name)
}

func TestEAN13CheckDigit(t *testing.T) {
	assert.Equal(t, 1, EAN13CheckDigit("400638133393"))
	assert.Equal(t, 0, EAN13CheckDigit("899123450001"))
}

func TestGenerateBarcodeFormats(t *testing.T) {
	now := time.UnixMilli(1772950000123)

	ean := GenerateBarcode(BarcodeEAN13, now)
	require.Regexp(t, regexp.MustCompile(`^\d{13}$`), ean)
	assert.Equal(t, int(ean[12]-'0'), EAN13CheckDigit(ean[:12]))

	assert.Regexp(t, regexp.MustCompile(`^\d{10}[A-Z0-9]{4}$`), GenerateBarcode(BarcodeCode128, now))
	assert.Regexp(t, regexp.MustCompile(`^\*\d{8}[A-Z0-9]{4}\*$`), GenerateBarcode(BarcodeCode39, now))
}

func TestBarcodeFormat(t *testing.T) {
	for in, want := range map[string]string{"": BarcodeCode128, "ean13": BarcodeEAN13, " Code39 ": BarcodeCode39, "CODE128": BarcodeCode128} {
		got, ok := BarcodeFormat(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := BarcodeFormat("qr")
	assert.False(t, ok)
}

func TestGenerateSKU(t *testing.T) {
	now := time.UnixMilli(1772950000123)
	assert.Equal(t, "BEV-0123-0007", GenerateSKU("beverage", 7, now))
	assert.Equal(t, "TO-0123-0001", GenerateSKU("to", 1, now))
	assert.Equal(t, "GEN-0123-0012", GenerateSKU("", 12, now))
}
