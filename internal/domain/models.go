package domain

import (
	"time"

	"retailpos/backend/internal/money"
)

type Product struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	SKU               string    `json:"sku"`
	Barcode           string    `json:"barcode"`
	Category          string    `json:"category"`
	Brand             string    `json:"brand,omitempty"`
	CostPriceCents    int64     `json:"cost_price_cents"`
	SellingPriceCents int64     `json:"selling_price_cents"`
	TaxPercent        float64   `json:"tax_percent"`
	DiscountPercent   float64   `json:"discount_percent"`
	DiscountType      string    `json:"discount_type"`
	Stock             int       `json:"stock"`
	ReorderLevel      int       `json:"reorder_level"`
	Unit              string    `json:"unit"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Snapshot freezes the fields a cart line needs at the moment the item is scanned.
func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		ID:                p.ID,
		Name:              p.Name,
		SKU:               p.SKU,
		Barcode:           p.Barcode,
		CostPriceCents:    p.CostPriceCents,
		SellingPriceCents: p.SellingPriceCents,
		DiscountPercent:   p.DiscountPercent,
		DiscountType:      p.DiscountType,
		DisplayPriceCents: money.DiscountedPrice(p.SellingPriceCents, p.DiscountPercent, p.DiscountType),
		TaxPercent:        p.TaxPercent,
		Stock:             p.Stock,
	}
}

type ProductSnapshot struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	SKU               string  `json:"sku"`
	Barcode           string  `json:"barcode"`
	CostPriceCents    int64   `json:"cost_price_cents"`
	SellingPriceCents int64   `json:"selling_price_cents"`
	DiscountPercent   float64 `json:"discount_percent"`
	DiscountType      string  `json:"discount_type,omitempty"`
	// DisplayPriceCents is the shelf price after the product discount. A
	// checkout line always discounts by percentage and may differ from it.
	DisplayPriceCents int64   `json:"display_price_cents"`
	TaxPercent        float64 `json:"tax_percent"`
	Stock             int     `json:"stock"`
}

type ProductCreateRequest struct {
	Name              string  `json:"name"`
	SKU               string  `json:"sku"`
	Barcode           string  `json:"barcode"`
	Category          string  `json:"category"`
	Brand             string  `json:"brand"`
	CostPriceCents    int64   `json:"cost_price_cents"`
	SellingPriceCents int64   `json:"selling_price_cents"`
	TaxPercent        float64 `json:"tax_percent"`
	DiscountPercent   float64 `json:"discount_percent"`
	DiscountType      string  `json:"discount_type"`
	InitialStock      int     `json:"initial_stock"`
	ReorderLevel      *int    `json:"reorder_level,omitempty"`
	Unit              string  `json:"unit"`
	// BarcodeFormat picks the generator when Barcode is empty: ean13, code128
	// (default) or code39.
	BarcodeFormat string `json:"barcode_format,omitempty"`
}

// ProductUpdateRequest changes catalogue fields only. Stock moves through the
// inventory ledger; SKU and barcode are fixed once issued.
type ProductUpdateRequest struct {
	Name              *string  `json:"name,omitempty"`
	Category          *string  `json:"category,omitempty"`
	Brand             *string  `json:"brand,omitempty"`
	CostPriceCents    *int64   `json:"cost_price_cents,omitempty"`
	SellingPriceCents *int64   `json:"selling_price_cents,omitempty"`
	TaxPercent        *float64 `json:"tax_percent,omitempty"`
	DiscountPercent   *float64 `json:"discount_percent,omitempty"`
	DiscountType      *string  `json:"discount_type,omitempty"`
	ReorderLevel      *int     `json:"reorder_level,omitempty"`
	Unit              *string  `json:"unit,omitempty"`
	Status            *string  `json:"status,omitempty"`
}

type PriceChange struct {
	ID                   string    `json:"id"`
	ProductID            string    `json:"product_id"`
	ProductSKU           string    `json:"product_sku"`
	OldCostPriceCents    int64     `json:"old_cost_price_cents"`
	NewCostPriceCents    int64     `json:"new_cost_price_cents"`
	OldSellingPriceCents int64     `json:"old_selling_price_cents"`
	NewSellingPriceCents int64     `json:"new_selling_price_cents"`
	ChangedBy            string    `json:"changed_by"`
	ChangedByName        string    `json:"changed_by_name"`
	ChangedAt            time.Time `json:"changed_at"`
}

type Supplier struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ContactPerson string    `json:"contact_person,omitempty"`
	Phone         string    `json:"phone"`
	Email         string    `json:"email,omitempty"`
	Address       string    `json:"address,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SupplierCreateRequest struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	Notes         string `json:"notes"`
}

type SupplierUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	ContactPerson *string `json:"contact_person,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Email         *string `json:"email,omitempty"`
	Address       *string `json:"address,omitempty"`
	Notes         *string `json:"notes,omitempty"`
	Active        *bool   `json:"active,omitempty"`
}

type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	ID           string
	Username     string
	Name         string
	PasswordHash string
	Role         string
	Active       bool
	CreatedAt    time.Time
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserSummary struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type SaleLineRequest struct {
	ProductID         string `json:"product_id"`
	Quantity          int    `json:"quantity"`
	UnitPriceOverride *int64 `json:"unit_price_override_cents,omitempty"`
}

type Payment struct {
	Method      string `json:"method"`
	AmountCents int64  `json:"amount_cents"`
	Reference   string `json:"reference,omitempty"`
}

type CreateSaleRequest struct {
	Lines          []SaleLineRequest `json:"lines"`
	CustomerID     string            `json:"customer_id,omitempty"`
	Payments       []Payment         `json:"payments"`
	Notes          string            `json:"notes,omitempty"`
	Counter        string            `json:"counter,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

type CreateSaleResponse struct {
	SaleID          string `json:"sale_id"`
	InvoiceNumber   string `json:"invoice_number"`
	GrandTotalCents int64  `json:"grand_total_cents"`
	ChangeCents     int64  `json:"change_cents"`
	Duplicate       bool   `json:"duplicate"`
}

type SaleItem struct {
	ProductID       string  `json:"product_id"`
	ProductName     string  `json:"product_name"`
	ProductSKU      string  `json:"product_sku"`
	Barcode         string  `json:"barcode"`
	Quantity        int     `json:"quantity"`
	UnitPriceCents  int64   `json:"unit_price_cents"`
	CostPriceCents  int64   `json:"cost_price_cents"`
	DiscountPercent float64 `json:"discount_percent"`
	DiscountCents   int64   `json:"discount_cents"`
	TaxPercent      float64 `json:"tax_percent"`
	TaxCents        int64   `json:"tax_cents"`
	SubtotalCents   int64   `json:"subtotal_cents"`
	TotalCents      int64   `json:"total_cents"`
}

type Sale struct {
	ID                 string     `json:"id"`
	InvoiceNumber      string     `json:"invoice_number"`
	Items              []SaleItem `json:"items"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	TotalDiscountCents int64      `json:"total_discount_cents"`
	TotalTaxCents      int64      `json:"total_tax_cents"`
	GrandTotalCents    int64      `json:"grand_total_cents"`
	Payments           []Payment  `json:"payments"`
	AmountPaidCents    int64      `json:"amount_paid_cents"`
	ChangeCents        int64      `json:"change_cents"`
	Status             string     `json:"status"`
	CashierID          string     `json:"cashier_id"`
	CashierName        string     `json:"cashier_name"`
	CustomerID         string     `json:"customer_id,omitempty"`
	CustomerName       string     `json:"customer_name,omitempty"`
	CustomerPhone      string     `json:"customer_phone,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	Counter            string     `json:"counter,omitempty"`
	IdempotencyKey     string     `json:"-"`
	CreatedAt          time.Time  `json:"created_at"`
}

type SaleFilter struct {
	From       *time.Time
	To         *time.Time
	CashierID  string
	CustomerID string
	Status     string
	Page       int
	Limit      int
}

type SaleListResponse struct {
	Sales      []Sale     `json:"sales"`
	Pagination Pagination `json:"pagination"`
}

type ReceiptResponse struct {
	SaleID        string `json:"sale_id"`
	InvoiceNumber string `json:"invoice_number"`
	PreviewText   string `json:"preview_text"`
}

type InventoryAdjustmentRequest struct {
	ProductID         string `json:"product_id"`
	Action            string `json:"action"`
	Quantity          int    `json:"quantity"`
	Reason            string `json:"reason"`
	CostPriceOverride *int64 `json:"cost_price_override_cents,omitempty"`
}

type InventoryAdjustmentResponse struct {
	ProductID      string `json:"product_id"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
}

type InventoryLogEntry struct {
	ID              string    `json:"id"`
	ProductID       string    `json:"product_id"`
	ProductName     string    `json:"product_name"`
	ProductSKU      string    `json:"product_sku"`
	Action          string    `json:"action"`
	QuantityBefore  int       `json:"quantity_before"`
	QuantityChange  int       `json:"quantity_change"`
	QuantityAfter   int       `json:"quantity_after"`
	Reason          string    `json:"reason,omitempty"`
	ReferenceType   string    `json:"reference_type,omitempty"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	CostPriceCents  *int64    `json:"cost_price_cents,omitempty"`
	PerformedBy     string    `json:"performed_by"`
	PerformedByName string    `json:"performed_by_name"`
	CreatedAt       time.Time `json:"created_at"`
}

type InventoryLogFilter struct {
	ProductID string
	Action    string
	From      *time.Time
	To        *time.Time
	Page      int
	Limit     int
}

type InventoryLogListResponse struct {
	Logs       []InventoryLogEntry `json:"logs"`
	Pagination Pagination          `json:"pagination"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewPagination(page int, limit int, total int) Pagination {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

type Customer struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email,omitempty"`
	Address         string    `json:"address,omitempty"`
	LoyaltyPoints   int64     `json:"loyalty_points"`
	TotalPurchases  int64     `json:"total_purchases"`
	TotalSpentCents int64     `json:"total_spent_cents"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type CustomerCreateRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Notes   string `json:"notes"`
}

type CustomerListResponse struct {
	Customers  []Customer `json:"customers"`
	Pagination Pagination `json:"pagination"`
}

type Settings struct {
	StoreName                string    `json:"store_name"`
	CurrencySymbol           string    `json:"currency_symbol"`
	InvoicePrefix            string    `json:"invoice_prefix"`
	InvoiceNextNumber        int64     `json:"invoice_next_number"`
	LowStockThreshold        int       `json:"low_stock_threshold"`
	EnableLoyalty            bool      `json:"enable_loyalty"`
	LoyaltyPointsPerCurrency float64   `json:"loyalty_points_per_currency"`
	ReceiptFooter            string    `json:"receipt_footer,omitempty"`
	UpdatedAt                time.Time `json:"updated_at"`
}

type SettingsUpdateRequest struct {
	StoreName                *string  `json:"store_name,omitempty"`
	CurrencySymbol           *string  `json:"currency_symbol,omitempty"`
	InvoicePrefix            *string  `json:"invoice_prefix,omitempty"`
	LowStockThreshold        *int     `json:"low_stock_threshold,omitempty"`
	EnableLoyalty            *bool    `json:"enable_loyalty,omitempty"`
	LoyaltyPointsPerCurrency *float64 `json:"loyalty_points_per_currency,omitempty"`
	ReceiptFooter            *string  `json:"receipt_footer,omitempty"`
}

// CustomerPurchase is the aggregate increment applied to a customer by one sale.
type CustomerPurchase struct {
	CustomerID    string
	SpentCents    int64
	LoyaltyPoints int64
}

type AuditLog struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actor_id"`
	ActorName   string         `json:"actor_name"`
	ActorRole   string         `json:"actor_role"`
	Action      string         `json:"action"`
	Entity      string         `json:"entity"`
	EntityID    string         `json:"entity_id"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

type SalesReportFilter struct {
	From     *time.Time
	To       *time.Time
	TopLimit int
}

// SalesReport aggregates completed sales created within [From, To]. Revenue
// is what was collected, tax included; profit is net sales (subtotal less
// discount) minus the cost snapshot on each line.
type SalesReport struct {
	From              time.Time              `json:"from"`
	To                time.Time              `json:"to"`
	Transactions      int64                  `json:"transactions"`
	ItemsSold         int64                  `json:"items_sold"`
	SubtotalCents     int64                  `json:"subtotal_cents"`
	DiscountCents     int64                  `json:"discount_cents"`
	TaxCents          int64                  `json:"tax_cents"`
	RevenueCents      int64                  `json:"revenue_cents"`
	NetSalesCents     int64                  `json:"net_sales_cents"`
	CostCents         int64                  `json:"cost_cents"`
	ProfitCents       int64                  `json:"profit_cents"`
	AverageOrderCents int64                  `json:"average_order_cents"`
	ByPayment         []PaymentMethodSummary `json:"by_payment"`
	TopProducts       []ProductSalesSummary  `json:"top_products"`
	ByCashier         []CashierSalesSummary  `json:"by_cashier"`
}

type PaymentMethodSummary struct {
	Method      string `json:"method"`
	Payments    int64  `json:"payments"`
	AmountCents int64  `json:"amount_cents"`
}

type ProductSalesSummary struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductSKU   string `json:"product_sku"`
	Quantity     int64  `json:"quantity"`
	RevenueCents int64  `json:"revenue_cents"`
	ProfitCents  int64  `json:"profit_cents"`
}

type CashierSalesSummary struct {
	CashierID    string `json:"cashier_id"`
	CashierName  string `json:"cashier_name"`
	Transactions int64  `json:"transactions"`
	RevenueCents int64  `json:"revenue_cents"`
}

type AuditLogFilter struct {
	ActorID string
	Action  string
	From    *time.Time
	To      *time.Time
	Limit   int
}

const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

const (
	SaleStatusCompleted     = "completed"
	SaleStatusRefunded      = "refunded"
	SaleStatusPartialRefund = "partial_refund"
)

const (
	PaymentCash   = "cash"
	PaymentCard   = "card"
	PaymentMobile = "mobile"
)

const (
	InventoryStockIn    = "stock_in"
	InventoryStockOut   = "stock_out"
	InventorySale       = "sale"
	InventoryReturn     = "return"
	InventoryAdjustment = "adjustment"
	InventoryPurchase   = "purchase"
	InventoryDamage     = "damage"
	InventoryExpired    = "expired"
)

const (
	ReferenceTypeSale       = "sale"
	ReferenceTypePurchase   = "purchase"
	ReferenceTypeAdjustment = "adjustment"
)

const (
	AuditLogin           = "login"
	AuditCreate          = "create"
	AuditUpdate          = "update"
	AuditSale            = "sale"
	AuditStockAdjustment = "stock_adjustment"
	AuditSettingsChange  = "settings_change"
)

const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleCashier = "cashier"
)
