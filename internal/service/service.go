package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"retailpos/backend/internal/catalog"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
	ErrConcurrentConflict = errors.New("concurrent update conflict, please retry")
	ErrTransactionFailed  = errors.New("transaction failed")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	// Location decides the calendar date printed in invoice numbers.
	Location        *time.Location
	MaxSaleAttempts int
	SaleTimeout     time.Duration
	Now             func() time.Time
}

type Service struct {
	repo        store.Repository
	catalog     *catalog.Lookup
	ledger      *ledger.Ledger
	loc         *time.Location
	maxAttempts int
	saleTimeout time.Duration
	now         func() time.Time
	tracer      trace.Tracer
}

func New(repo store.Repository, lookup *catalog.Lookup, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxSaleAttempts < 1 {
		opts.MaxSaleAttempts = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if lookup == nil {
		lookup = catalog.NewLookup(repo, nil, 0)
	}

	return &Service{
		repo:        repo,
		catalog:     lookup,
		ledger:      ledger.New(opts.Now),
		loc:         opts.Location,
		maxAttempts: opts.MaxSaleAttempts,
		saleTimeout: opts.SaleTimeout,
		now:         opts.Now,
		tracer:      otel.Tracer("retailpos/service"),
	}
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Actor{}, fmt.Errorf("%w: actor required", ErrForbidden)
	}
	if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
		return domain.Actor{}, fmt.Errorf("%w: role %s not allowed", ErrForbidden, actor.Role)
	}
	return actor, nil
}

// runAtomic executes fn in one unit of work, retrying the whole unit with
// exponential backoff when storage reports a write conflict. fn must rebuild
// all of its results on every attempt.
func (s *Service) runAtomic(ctx context.Context, op string, fn func(ctx context.Context, tx store.Tx) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 25 * time.Millisecond
	policy.MaxInterval = 400 * time.Millisecond

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := s.repo.WithinTx(ctx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, store.ErrConflict) {
			log.Printf("[service] %s: conflict on attempt %d/%d: %v", op, attempt, s.maxAttempts, err)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(s.maxAttempts)))

	return classify(op, err)
}

// classify keeps caller-actionable errors as they are and folds everything
// else into ErrConcurrentConflict or ErrTransactionFailed.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrDuplicate):
		return err
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConcurrentConflict, err)
	default:
		log.Printf("[service] %s failed: %v", op, err)
		return fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (s *Service) auditEntry(actor domain.Actor, action string, entity string, entityID string, description string, metadata map[string]any) domain.AuditLog {
	return domain.AuditLog{
		ID:          xid.New("aud"),
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		ActorRole:   actor.Role,
		Action:      action,
		Entity:      entity,
		EntityID:    entityID,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   s.now().UTC(),
	}
}

// logAudit writes a best-effort audit row outside any unit of work.
func (s *Service) logAudit(ctx context.Context, action string, entity string, entityID string, description string, metadata map[string]any) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{ID: "system", Name: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, s.auditEntry(actor, action, entity, entityID, description, metadata)); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entity, entityID, err)
	}
}

// RecordLogin is called by the auth layer after a successful credential check.
func (s *Service) RecordLogin(ctx context.Context, actor domain.Actor) {
	s.logAudit(WithActor(ctx, actor), domain.AuditLogin, "user", actor.ID, fmt.Sprintf("User logged in: %s", actor.Name), nil)
}

func (s *Service) RecordUserCreated(ctx context.Context, user domain.UserSummary) {
	s.logAudit(ctx, domain.AuditCreate, "user", user.ID, fmt.Sprintf("Created user: %s", user.Username), map[string]any{"role": user.Role})
}

func (s *Service) FindProductByBarcode(ctx context.Context, code string) (domain.ProductSnapshot, error) {
	product, err := s.catalog.FindByBarcode(ctx, code)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	return product.Snapshot(), nil
}

func (s *Service) FindProductByID(ctx context.Context, id string) (domain.ProductSnapshot, error) {
	product, err := s.catalog.FindByID(ctx, id)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	return product.Snapshot(), nil
}

func (s *Service) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, domain.Pagination, error) {
	filter.Page, filter.Limit = store.NormalizePage(filter.Page, filter.Limit, 50, 200)
	products, total, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, domain.Pagination{}, err
	}
	return products, domain.NewPagination(filter.Page, filter.Limit, total), nil
}

func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx, 50)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.ToLower(strings.TrimSpace(req.Category))
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.DiscountType = defaultString(strings.ToLower(strings.TrimSpace(req.DiscountType)), domain.DiscountTypePercentage)
	barcodeFormat, knownFormat := catalog.BarcodeFormat(req.BarcodeFormat)

	switch {
	case req.Name == "" || req.Category == "":
		return domain.Product{}, validationError("name and category are required")
	case req.SellingPriceCents < 0 || req.CostPriceCents < 0:
		return domain.Product{}, validationError("prices must not be negative")
	case !validPrice(req.SellingPriceCents) || !validPrice(req.CostPriceCents):
		return domain.Product{}, validationError("prices are out of range")
	case !validPercent(req.TaxPercent) || !validPercent(req.DiscountPercent):
		return domain.Product{}, validationError("tax and discount percent must be between 0 and 100")
	case req.DiscountType != domain.DiscountTypePercentage && req.DiscountType != domain.DiscountTypeFixed:
		return domain.Product{}, validationError("unknown discount type %q", req.DiscountType)
	case req.InitialStock < 0:
		return domain.Product{}, validationError("initial stock must not be negative")
	case !knownFormat:
		return domain.Product{}, validationError("unknown barcode format %q", req.BarcodeFormat)
	}

	now := s.now().UTC()
	if req.SKU == "" {
		count, err := s.repo.CountProductsInCategory(ctx, req.Category)
		if err != nil {
			return domain.Product{}, err
		}
		req.SKU = catalog.GenerateSKU(req.Category, count+1, now)
	}
	if req.Barcode == "" {
		req.Barcode = catalog.GenerateBarcode(barcodeFormat, now)
	}
	reorderLevel := 10
	if req.ReorderLevel != nil {
		reorderLevel = max(*req.ReorderLevel, 0)
	}

	product := domain.Product{
		ID:                xid.New("prd"),
		Name:              req.Name,
		SKU:               req.SKU,
		Barcode:           req.Barcode,
		Category:          req.Category,
		Brand:             strings.TrimSpace(req.Brand),
		CostPriceCents:    req.CostPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		TaxPercent:        req.TaxPercent,
		DiscountPercent:   req.DiscountPercent,
		DiscountType:      req.DiscountType,
		ReorderLevel:      reorderLevel,
		Unit:              defaultString(strings.TrimSpace(req.Unit), "pcs"),
		Status:            domain.ProductStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.runAtomic(ctx, "create product", func(ctx context.Context, tx store.Tx) error {
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		if req.InitialStock > 0 {
			cost := product.CostPriceCents
			if _, err := s.ledger.Adjust(ctx, tx, ledger.AdjustParams{
				ProductID:      product.ID,
				Delta:          req.InitialStock,
				Action:         domain.InventoryStockIn,
				Reason:         "Initial stock",
				CostPriceCents: &cost,
				Actor:          actor,
			}); err != nil {
				return err
			}
		}
		return tx.InsertAuditLog(ctx, s.auditEntry(actor, domain.AuditCreate, "product", product.ID,
			fmt.Sprintf("Created product: %s", product.Name),
			map[string]any{"sku": product.SKU, "barcode": product.Barcode}))
	})
	if err != nil {
		return domain.Product{}, err
	}

	product.Stock = req.InitialStock
	return product, nil
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	if _, err := requireRole(ctx); err != nil {
		return domain.Customer{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if req.Name == "" || req.Phone == "" {
		return domain.Customer{}, validationError("customer name and phone are required")
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    req.Name,
		Phone:   req.Phone,
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
		Notes:   strings.TrimSpace(req.Notes),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, domain.AuditCreate, "customer", created.ID, fmt.Sprintf("Created customer: %s", created.Name), map[string]any{"phone": created.Phone})
	return *created, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return domain.Customer{}, err
	}
	return *customer, nil
}

func (s *Service) ListCustomers(ctx context.Context, filter store.CustomerFilter) (domain.CustomerListResponse, error) {
	filter.Page, filter.Limit = store.NormalizePage(filter.Page, filter.Limit, 50, 200)
	customers, total, err := s.repo.ListCustomers(ctx, filter)
	if err != nil {
		return domain.CustomerListResponse{}, err
	}
	return domain.CustomerListResponse{
		Customers:  customers,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) UpdateSettings(ctx context.Context, req domain.SettingsUpdateRequest) (domain.Settings, error) {
	if _, err := requireRole(ctx, domain.RoleOwner); err != nil {
		return domain.Settings{}, err
	}

	current, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	next := *current
	changes := make([]string, 0, 7)

	if req.StoreName != nil {
		name := strings.TrimSpace(*req.StoreName)
		if name == "" {
			return domain.Settings{}, validationError("store name must not be empty")
		}
		next.StoreName = name
		changes = append(changes, "store_name")
	}
	if req.CurrencySymbol != nil {
		next.CurrencySymbol = strings.TrimSpace(*req.CurrencySymbol)
		changes = append(changes, "currency_symbol")
	}
	if req.InvoicePrefix != nil {
		prefix := strings.ToUpper(strings.TrimSpace(*req.InvoicePrefix))
		if prefix == "" || strings.Contains(prefix, "-") {
			return domain.Settings{}, validationError("invoice prefix must be non-empty and must not contain '-'")
		}
		next.InvoicePrefix = prefix
		changes = append(changes, "invoice_prefix")
	}
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Settings{}, validationError("low stock threshold must not be negative")
		}
		next.LowStockThreshold = *req.LowStockThreshold
		changes = append(changes, "low_stock_threshold")
	}
	if req.EnableLoyalty != nil {
		next.EnableLoyalty = *req.EnableLoyalty
		changes = append(changes, "enable_loyalty")
	}
	if req.LoyaltyPointsPerCurrency != nil {
		if *req.LoyaltyPointsPerCurrency < 0 {
			return domain.Settings{}, validationError("loyalty rate must not be negative")
		}
		next.LoyaltyPointsPerCurrency = *req.LoyaltyPointsPerCurrency
		changes = append(changes, "loyalty_points_per_currency")
	}
	if req.ReceiptFooter != nil {
		next.ReceiptFooter = strings.TrimSpace(*req.ReceiptFooter)
		changes = append(changes, "receipt_footer")
	}

	updated, err := s.repo.UpdateSettings(ctx, next)
	if err != nil {
		return domain.Settings{}, err
	}

	s.logAudit(ctx, domain.AuditSettingsChange, "settings", "store", "Updated store settings", map[string]any{"changes": changes})
	return *updated, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	if _, err := requireRole(ctx, domain.RoleOwner); err != nil {
		return nil, err
	}
	if filter.Limit < 1 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.repo.ListAuditLogs(ctx, filter)
}

func validPercent(v float64) bool {
	return v >= 0 && v <= 100
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
