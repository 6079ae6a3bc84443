package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// UpdateProduct rewrites catalogue fields and, when either price moves,
// appends a price history row in the same unit of work. Past sale lines keep
// the prices they were sold at.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "service.UpdateProduct")
	defer span.End()

	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager)
	if err != nil {
		return domain.Product{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, validationError("product id is required")
	}
	span.SetAttributes(attribute.String("product.id", id))

	var updated domain.Product
	err = s.runAtomic(ctx, "update product", func(ctx context.Context, tx store.Tx) error {
		current, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		next, changes, err := applyProductUpdate(*current, req)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			updated = *current
			return nil
		}

		now := s.now().UTC()
		next.UpdatedAt = now
		if err := tx.UpdateProduct(ctx, next); err != nil {
			return err
		}

		metadata := map[string]any{"changes": changes}
		if next.SellingPriceCents != current.SellingPriceCents || next.CostPriceCents != current.CostPriceCents {
			if err := tx.InsertPriceChange(ctx, domain.PriceChange{
				ID:                   xid.New("prc"),
				ProductID:            next.ID,
				ProductSKU:           next.SKU,
				OldCostPriceCents:    current.CostPriceCents,
				NewCostPriceCents:    next.CostPriceCents,
				OldSellingPriceCents: current.SellingPriceCents,
				NewSellingPriceCents: next.SellingPriceCents,
				ChangedBy:            actor.ID,
				ChangedByName:        actor.Name,
				ChangedAt:            now,
			}); err != nil {
				return err
			}
			metadata["old_selling_price_cents"] = current.SellingPriceCents
			metadata["new_selling_price_cents"] = next.SellingPriceCents
		}

		updated = next
		return tx.InsertAuditLog(ctx, s.auditEntry(actor, domain.AuditUpdate, "product", next.ID,
			fmt.Sprintf("Updated product: %s", next.Name), metadata))
	})
	if err != nil {
		recordSpanError(span, err)
		return domain.Product{}, err
	}

	s.catalog.Invalidate(ctx, updated)
	return updated, nil
}

func applyProductUpdate(p domain.Product, req domain.ProductUpdateRequest) (domain.Product, []string, error) {
	changes := make([]string, 0, 11)

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return p, nil, validationError("name must not be empty")
		}
		p.Name = name
		changes = append(changes, "name")
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if category == "" {
			return p, nil, validationError("category must not be empty")
		}
		p.Category = category
		changes = append(changes, "category")
	}
	if req.Brand != nil {
		p.Brand = strings.TrimSpace(*req.Brand)
		changes = append(changes, "brand")
	}
	if req.CostPriceCents != nil {
		if !validPrice(*req.CostPriceCents) {
			return p, nil, validationError("cost price is out of range")
		}
		p.CostPriceCents = *req.CostPriceCents
		changes = append(changes, "cost_price_cents")
	}
	if req.SellingPriceCents != nil {
		if !validPrice(*req.SellingPriceCents) {
			return p, nil, validationError("selling price is out of range")
		}
		p.SellingPriceCents = *req.SellingPriceCents
		changes = append(changes, "selling_price_cents")
	}
	if req.TaxPercent != nil {
		if !validPercent(*req.TaxPercent) {
			return p, nil, validationError("tax percent must be between 0 and 100")
		}
		p.TaxPercent = *req.TaxPercent
		changes = append(changes, "tax_percent")
	}
	if req.DiscountPercent != nil {
		if !validPercent(*req.DiscountPercent) {
			return p, nil, validationError("discount percent must be between 0 and 100")
		}
		p.DiscountPercent = *req.DiscountPercent
		changes = append(changes, "discount_percent")
	}
	if req.DiscountType != nil {
		kind := strings.ToLower(strings.TrimSpace(*req.DiscountType))
		if kind != domain.DiscountTypePercentage && kind != domain.DiscountTypeFixed {
			return p, nil, validationError("unknown discount type %q", kind)
		}
		p.DiscountType = kind
		changes = append(changes, "discount_type")
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return p, nil, validationError("reorder level must not be negative")
		}
		p.ReorderLevel = *req.ReorderLevel
		changes = append(changes, "reorder_level")
	}
	if req.Unit != nil {
		p.Unit = defaultString(strings.TrimSpace(*req.Unit), p.Unit)
		changes = append(changes, "unit")
	}
	if req.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*req.Status))
		if status != domain.ProductStatusActive && status != domain.ProductStatusInactive {
			return p, nil, validationError("unknown product status %q", status)
		}
		p.Status = status
		changes = append(changes, "status")
	}
	return p, changes, nil
}

func (s *Service) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.PriceChange, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager); err != nil {
		return nil, err
	}
	productID = strings.TrimSpace(productID)
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	return s.repo.ListPriceHistory(ctx, productID, limit)
}

func validPrice(cents int64) bool {
	return cents >= 0 && cents <= money.MaxAmountCents
}
