package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func openIntegrationStore(t *testing.T) *Store {
	t.Helper()
	databaseURL := os.Getenv("RETAILPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set RETAILPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func seedProduct(t *testing.T, s *Store, stock int) string {
	t.Helper()
	ctx := context.Background()
	stamp := time.Now().UnixNano()
	id := fmt.Sprintf("prd-it-%d", stamp)

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		return tx.InsertProduct(ctx, domain.Product{
			ID: id, Name: "Integration Widget", SKU: fmt.Sprintf("ITW-%d", stamp), Barcode: fmt.Sprintf("IT%d", stamp),
			Category: "test", SellingPriceCents: 500, DiscountType: domain.DiscountTypePercentage,
			Stock: stock, ReorderLevel: 1, Unit: "pcs", Status: domain.ProductStatusActive, CreatedAt: now, UpdatedAt: now,
		})
	})
	if err != nil {
		t.Fatalf("insert product: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_logs WHERE product_id = $1`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM price_history WHERE product_id = $1`, id)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	})
	return id
}

func TestApplyStockDeltaNeverOversells(t *testing.T) {
	s := openIntegrationStore(t)
	id := seedProduct(t, s, 5)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
				_, err := tx.ApplyStockDelta(ctx, id, -3)
				return err
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one decrement to win, got %d", succeeded)
	}
	p, err := s.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 2 {
		t.Fatalf("expected stock 2, got %d", p.Stock)
	}
}

func TestWithinTxRollsBackInvoiceCounter(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()

	before, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}

	sentinel := errors.New("abort")
	err = s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, _, err := tx.NextInvoiceSequence(ctx); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	after, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if after.InvoiceNextNumber != before.InvoiceNextNumber {
		t.Fatalf("counter moved from %d to %d on rollback", before.InvoiceNextNumber, after.InvoiceNextNumber)
	}
}

func TestUpdateProductKeepsStockAndRecordsPriceChange(t *testing.T) {
	s := openIntegrationStore(t)
	id := seedProduct(t, s, 7)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		p.SellingPriceCents = 650
		p.Stock = 999
		p.UpdatedAt = time.Now().UTC()
		if err := tx.UpdateProduct(ctx, *p); err != nil {
			return err
		}
		return tx.InsertPriceChange(ctx, domain.PriceChange{
			ProductID: id, ProductSKU: p.SKU, OldSellingPriceCents: 500, NewSellingPriceCents: 650,
			ChangedBy: "usr-it", ChangedByName: "Integration",
		})
	})
	if err != nil {
		t.Fatalf("update product: %v", err)
	}

	p, err := s.GetProduct(ctx, id)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.SellingPriceCents != 650 || p.Stock != 7 {
		t.Fatalf("expected price 650 and stock 7, got %d and %d", p.SellingPriceCents, p.Stock)
	}
	history, err := s.ListPriceHistory(ctx, id, 10)
	if err != nil {
		t.Fatalf("list price history: %v", err)
	}
	if len(history) != 1 || history[0].OldSellingPriceCents != 500 || history[0].NewSellingPriceCents != 650 {
		t.Fatalf("unexpected price history: %+v", history)
	}
}

func TestSupplierLifecycle(t *testing.T) {
	s := openIntegrationStore(t)
	ctx := context.Background()
	name := fmt.Sprintf("Integration Supplier %d", time.Now().UnixNano())

	created, err := s.CreateSupplier(ctx, domain.Supplier{Name: name, Phone: "555-0199", Active: true})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, created.ID)
	})

	created.Active = false
	if _, err := s.UpdateSupplier(ctx, *created); err != nil {
		t.Fatalf("deactivate supplier: %v", err)
	}

	active, err := s.ListSuppliers(ctx, store.SupplierFilter{Search: name})
	if err != nil {
		t.Fatalf("list suppliers: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected inactive supplier hidden, got %+v", active)
	}
	all, err := s.ListSuppliers(ctx, store.SupplierFilter{Search: name, IncludeInactive: true})
	if err != nil {
		t.Fatalf("list suppliers: %v", err)
	}
	if len(all) != 1 || all[0].ID != created.ID {
		t.Fatalf("expected the deactivated supplier, got %+v", all)
	}
}
