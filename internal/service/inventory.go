package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
)

// manualActions maps each staff-entered action to the sign of its stock delta.
var manualActions = map[string]int{
	domain.InventoryStockIn:    1,
	domain.InventoryStockOut:   -1,
	domain.InventoryAdjustment: -1,
	domain.InventoryDamage:     -1,
	domain.InventoryExpired:    -1,
}

func (s *Service) AdjustInventory(ctx context.Context, req domain.InventoryAdjustmentRequest) (domain.InventoryAdjustmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.AdjustInventory")
	defer span.End()

	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager)
	if err != nil {
		return domain.InventoryAdjustmentResponse{}, err
	}

	req.ProductID = strings.TrimSpace(req.ProductID)
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	req.Reason = strings.TrimSpace(req.Reason)

	sign, ok := manualActions[req.Action]
	switch {
	case req.ProductID == "":
		return domain.InventoryAdjustmentResponse{}, validationError("product_id is required")
	case !ok:
		return domain.InventoryAdjustmentResponse{}, validationError("unsupported inventory action %q", req.Action)
	case req.Quantity < 1:
		return domain.InventoryAdjustmentResponse{}, validationError("quantity must be at least 1")
	case req.Reason == "":
		return domain.InventoryAdjustmentResponse{}, validationError("reason is required")
	case req.CostPriceOverride != nil && *req.CostPriceOverride < 0:
		return domain.InventoryAdjustmentResponse{}, validationError("cost price must not be negative")
	}

	var movement ledger.Movement
	err = s.runAtomic(ctx, "adjust inventory", func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		cost := product.CostPriceCents
		if req.CostPriceOverride != nil {
			cost = *req.CostPriceOverride
		}

		movement, err = s.ledger.Adjust(ctx, tx, ledger.AdjustParams{
			ProductID:      req.ProductID,
			Delta:          sign * req.Quantity,
			Action:         req.Action,
			Reason:         req.Reason,
			ReferenceType:  domain.ReferenceTypeAdjustment,
			CostPriceCents: &cost,
			Actor:          actor,
		})
		if err != nil {
			return err
		}

		return tx.InsertAuditLog(ctx, s.auditEntry(actor, domain.AuditStockAdjustment, "product", product.ID,
			fmt.Sprintf("%s: %d units of %s", req.Action, req.Quantity, product.Name),
			map[string]any{"reason": req.Reason, "before": movement.Before, "after": movement.After}))
	})
	if err != nil {
		recordSpanError(span, err)
		return domain.InventoryAdjustmentResponse{}, err
	}

	s.catalog.Invalidate(ctx, movement.Product)
	return domain.InventoryAdjustmentResponse{
		ProductID:      movement.Product.ID,
		QuantityBefore: movement.Before,
		QuantityAfter:  movement.After,
	}, nil
}

func (s *Service) ListInventoryLogs(ctx context.Context, filter domain.InventoryLogFilter) (domain.InventoryLogListResponse, error) {
	filter.Page, filter.Limit = store.NormalizePage(filter.Page, filter.Limit, 50, 200)
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.InventoryLogListResponse{}, validationError("date range end is before its start")
	}

	logs, total, err := s.repo.ListInventoryLogs(ctx, filter)
	if err != nil {
		return domain.InventoryLogListResponse{}, err
	}
	return domain.InventoryLogListResponse{
		Logs:       logs,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}
