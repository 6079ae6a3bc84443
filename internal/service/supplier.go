package service

import (
	"context"
	"fmt"
	"strings"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager); err != nil {
		return domain.Supplier{}, err
	}

	supplier := domain.Supplier{
		Name:          strings.TrimSpace(req.Name),
		ContactPerson: strings.TrimSpace(req.ContactPerson),
		Phone:         strings.TrimSpace(req.Phone),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Address:       strings.TrimSpace(req.Address),
		Notes:         strings.TrimSpace(req.Notes),
		Active:        true,
	}
	if err := validateSupplier(supplier); err != nil {
		return domain.Supplier{}, err
	}

	created, err := s.repo.CreateSupplier(ctx, supplier)
	if err != nil {
		return domain.Supplier{}, err
	}

	s.logAudit(ctx, domain.AuditCreate, "supplier", created.ID, fmt.Sprintf("Created supplier: %s", created.Name), map[string]any{"phone": created.Phone})
	return *created, nil
}

// UpdateSupplier applies a partial update. Setting active to false is how a
// supplier is retired; rows are never deleted.
func (s *Service) UpdateSupplier(ctx context.Context, id string, req domain.SupplierUpdateRequest) (domain.Supplier, error) {
	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager); err != nil {
		return domain.Supplier{}, err
	}

	current, err := s.repo.GetSupplier(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}
	next := *current
	if req.Name != nil {
		next.Name = strings.TrimSpace(*req.Name)
	}
	if req.ContactPerson != nil {
		next.ContactPerson = strings.TrimSpace(*req.ContactPerson)
	}
	if req.Phone != nil {
		next.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Email != nil {
		next.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Address != nil {
		next.Address = strings.TrimSpace(*req.Address)
	}
	if req.Notes != nil {
		next.Notes = strings.TrimSpace(*req.Notes)
	}
	if req.Active != nil {
		next.Active = *req.Active
	}
	if err := validateSupplier(next); err != nil {
		return domain.Supplier{}, err
	}

	updated, err := s.repo.UpdateSupplier(ctx, next)
	if err != nil {
		return domain.Supplier{}, err
	}

	verb := "Updated"
	if current.Active && !updated.Active {
		verb = "Deactivated"
	}
	s.logAudit(ctx, domain.AuditUpdate, "supplier", updated.ID, fmt.Sprintf("%s supplier: %s", verb, updated.Name), map[string]any{"active": updated.Active})
	return *updated, nil
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Supplier{}, err
	}
	supplier, err := s.repo.GetSupplier(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

func (s *Service) ListSuppliers(ctx context.Context, filter store.SupplierFilter) ([]domain.Supplier, error) {
	if _, err := requireRole(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListSuppliers(ctx, filter)
}

func validateSupplier(sup domain.Supplier) error {
	switch {
	case sup.Name == "" || sup.Phone == "":
		return validationError("supplier name and phone are required")
	case sup.Email != "" && !strings.Contains(sup.Email, "@"):
		return validationError("supplier email %q is not valid", sup.Email)
	}
	return nil
}
