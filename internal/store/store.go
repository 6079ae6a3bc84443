package store

import (
	"context"
	"errors"
	"time"

	"retailpos/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("concurrent modification conflict")
	ErrDuplicate         = errors.New("duplicate record")
)

// Tx is the write surface of one unit of work. Every call made on a Tx
// commits or rolls back together.
type Tx interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	InsertProduct(ctx context.Context, product domain.Product) error
	// UpdateProduct rewrites catalogue fields. Stock, SKU and barcode are left
	// as stored.
	UpdateProduct(ctx context.Context, product domain.Product) error
	InsertPriceChange(ctx context.Context, change domain.PriceChange) error
	// ApplyStockDelta adds delta to the product's stock only if the result
	// stays non-negative, as one conditional write. It returns the stock after
	// the write. On ErrInsufficientStock it returns the stock it observed.
	ApplyStockDelta(ctx context.Context, productID string, delta int) (int, error)
	InsertInventoryLog(ctx context.Context, entry domain.InventoryLogEntry) error

	GetSettings(ctx context.Context) (*domain.Settings, error)
	// NextInvoiceSequence atomically increments the invoice counter and returns
	// the configured prefix with the pre-increment value.
	NextInvoiceSequence(ctx context.Context) (string, int64, error)

	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	IncrementCustomerTotals(ctx context.Context, purchase domain.CustomerPurchase) error

	InsertSale(ctx context.Context, sale domain.Sale) error
	InsertAuditLog(ctx context.Context, entry domain.AuditLog) error
}

type UnitOfWork interface {
	// WithinTx runs fn inside a storage transaction. A non-nil error from fn,
	// or a cancelled ctx, rolls back every write made through tx.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type ProductFilter struct {
	Search   string
	Category string
	Status   string
	Page     int
	Limit    int
}

type CustomerFilter struct {
	Search string
	Page   int
	Limit  int
}

type SupplierFilter struct {
	Search          string
	IncludeInactive bool
}

type Repository interface {
	UnitOfWork

	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, int, error)
	CountProductsInCategory(ctx context.Context, category string) (int, error)
	ListLowStockProducts(ctx context.Context, limit int) ([]domain.Product, error)
	// ListPriceHistory returns the newest changes first.
	ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.PriceChange, error)

	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error)
	// SalesReport aggregates completed sales created in [from, to]. Derived
	// figures (profit, average order) are left to the caller.
	SalesReport(ctx context.Context, from, to time.Time, topLimit int) (*domain.SalesReport, error)

	ListInventoryLogs(ctx context.Context, filter domain.InventoryLogFilter) ([]domain.InventoryLogEntry, int, error)

	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	ListCustomers(ctx context.Context, filter CustomerFilter) ([]domain.Customer, int, error)

	CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error)
	// ListSuppliers orders by name.
	ListSuppliers(ctx context.Context, filter SupplierFilter) ([]domain.Supplier, error)

	GetSettings(ctx context.Context) (*domain.Settings, error)
	// UpdateSettings never touches the invoice counter.
	UpdateSettings(ctx context.Context, settings domain.Settings) (*domain.Settings, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error)

	FindUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) error
}

func NormalizePage(page int, limit int, fallbackLimit int, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = fallbackLimit
	}
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
