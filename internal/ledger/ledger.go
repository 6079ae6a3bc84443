// Package ledger owns every change to a product's on-hand quantity.
//
// A change is one conditional write through store.Tx that refuses to drive
// stock below zero, followed by an append-only log row describing it, both in
// the caller's unit of work.
package ledger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var ErrZeroDelta = errors.New("stock delta must not be zero")

// InsufficientStockError reports the product that could not cover a decrement.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error {
	return store.ErrInsufficientStock
}

type Ledger struct {
	now func() time.Time
}

func New(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now}
}

type AdjustParams struct {
	ProductID      string
	Delta          int
	Action         string
	Reason         string
	ReferenceType  string
	ReferenceID    string
	CostPriceCents *int64
	Actor          domain.Actor
}

// Movement is the outcome of one committed-in-tx quantity change.
type Movement struct {
	Product domain.Product
	Before  int
	After   int
	Entry   domain.InventoryLogEntry
}

func (l *Ledger) Adjust(ctx context.Context, tx store.Tx, p AdjustParams) (Movement, error) {
	if p.Delta == 0 {
		return Movement{}, ErrZeroDelta
	}

	product, err := tx.GetProduct(ctx, p.ProductID)
	if err != nil {
		return Movement{}, err
	}

	after, err := tx.ApplyStockDelta(ctx, p.ProductID, p.Delta)
	if errors.Is(err, store.ErrInsufficientStock) {
		return Movement{}, &InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Requested:   -p.Delta,
			Available:   after,
		}
	}
	if err != nil {
		return Movement{}, err
	}
	before := after - p.Delta

	entry := domain.InventoryLogEntry{
		ID:              xid.New("ilg"),
		ProductID:       product.ID,
		ProductName:     product.Name,
		ProductSKU:      product.SKU,
		Action:          p.Action,
		QuantityBefore:  before,
		QuantityChange:  p.Delta,
		QuantityAfter:   after,
		Reason:          p.Reason,
		ReferenceType:   p.ReferenceType,
		ReferenceID:     p.ReferenceID,
		CostPriceCents:  p.CostPriceCents,
		PerformedBy:     p.Actor.ID,
		PerformedByName: p.Actor.Name,
		CreatedAt:       l.now().UTC(),
	}
	if err := tx.InsertInventoryLog(ctx, entry); err != nil {
		return Movement{}, fmt.Errorf("append inventory log for %s: %w", product.ID, err)
	}

	product.Stock = after
	return Movement{Product: *product, Before: before, After: after, Entry: entry}, nil
}

type Reservation struct {
	ProductID string
	Quantity  int
}

type Reference struct {
	Type   string
	ID     string
	Reason string
}

// ReserveLines decrements stock for every reservation as sale movements. Products
// are touched in ascending ID order so concurrent reservations over the same
// products always lock rows in the same sequence. Movements are returned in
// input order. The first failure stops the walk; the caller's unit of work
// discards the earlier writes.
func (l *Ledger) ReserveLines(ctx context.Context, tx store.Tx, lines []Reservation, ref Reference, actor domain.Actor) ([]Movement, error) {
	order := make([]int, len(lines))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(lines[a].ProductID, lines[b].ProductID)
	})

	movements := make([]Movement, len(lines))
	for _, idx := range order {
		line := lines[idx]
		if line.Quantity < 1 {
			return nil, fmt.Errorf("reserve %s: quantity must be positive", line.ProductID)
		}
		m, err := l.Adjust(ctx, tx, AdjustParams{
			ProductID:     line.ProductID,
			Delta:         -line.Quantity,
			Action:        domain.InventorySale,
			Reason:        ref.Reason,
			ReferenceType: ref.Type,
			ReferenceID:   ref.ID,
			Actor:         actor,
		})
		if err != nil {
			return nil, err
		}
		movements[idx] = m
	}
	return movements, nil
}
