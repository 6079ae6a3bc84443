package memory

import (
	"context"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/invoice"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// Store keeps every record in process memory. Writes that go through
// WithinTx hold the write lock for the whole unit of work and are undone
// from a journal when the unit fails.
type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productByCode   map[string]string
	productBySKU    map[string]string
	priceHistory    []domain.PriceChange
	salesByID       map[string]domain.Sale
	salesByIdem     map[string]string
	inventoryLogs   []domain.InventoryLogEntry
	customersByID   map[string]domain.Customer
	customerByPhone map[string]string
	suppliersByID   map[string]domain.Supplier
	settings        domain.Settings
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func DefaultSettings() domain.Settings {
	return domain.Settings{
		StoreName:                "My Store",
		CurrencySymbol:           "$",
		InvoicePrefix:            invoice.DefaultPrefix,
		InvoiceNextNumber:        1,
		LowStockThreshold:        10,
		EnableLoyalty:            false,
		LoyaltyPointsPerCurrency: 1,
		UpdatedAt:                time.Now().UTC(),
	}
}

// New returns an empty store with default settings and no users.
func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		productByCode:   make(map[string]string),
		productBySKU:    make(map[string]string),
		salesByID:       make(map[string]domain.Sale),
		salesByIdem:     make(map[string]string),
		inventoryLogs:   make([]domain.InventoryLogEntry, 0, 128),
		customersByID:   make(map[string]domain.Customer),
		customerByPhone: make(map[string]string),
		suppliersByID:   make(map[string]domain.Supplier),
		settings:        DefaultSettings(),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the in-memory accounts for dev/demo mode. Passwords come
// from SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD,
// falling back to dev defaults with a warning. PostgreSQL deployments never
// read these.
func seedUsers() map[string]domain.UserAccount {
	ownerPwd := envOr("SEED_OWNER_PASSWORD", "owner123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_OWNER_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_OWNER_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		id       string
		username string
		name     string
		password string
		role     string
	}{
		{"usr-owner", "owner", "Store Owner", ownerPwd, domain.RoleOwner},
		{"usr-manager", "manager", "Floor Manager", managerPwd, domain.RoleManager},
		{"usr-cashier", "cashier", "Front Cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			ID:           u.id,
			Username:     u.username,
			Name:         u.name,
			PasswordHash: string(hash),
			Role:         u.role,
			Active:       true,
			CreatedAt:    now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	products := []domain.Product{
		{ID: "prd-coffee-250", Name: "Ground Coffee 250g", SKU: "BEV-0001-0001", Barcode: "8991234500017", Category: "beverage", CostPriceCents: 520, SellingPriceCents: 899, TaxPercent: 10, Stock: 40, ReorderLevel: 10, Unit: "pcs"},
		{ID: "prd-tea-25", Name: "Black Tea 25 Bags", SKU: "BEV-0001-0002", Barcode: "8991234500024", Category: "beverage", CostPriceCents: 210, SellingPriceCents: 375, TaxPercent: 10, Stock: 60, ReorderLevel: 15, Unit: "box"},
		{ID: "prd-water-600", Name: "Mineral Water 600ml", SKU: "BEV-0001-0003", Barcode: "8991234500031", Category: "beverage", CostPriceCents: 35, SellingPriceCents: 99, Stock: 200, ReorderLevel: 48, Unit: "btl"},
		{ID: "prd-bread-white", Name: "White Bread Loaf", SKU: "BAK-0001-0001", Barcode: "8991234500048", Category: "bakery", CostPriceCents: 140, SellingPriceCents: 249, Stock: 25, ReorderLevel: 10, Unit: "pcs"},
		{ID: "prd-milk-1l", Name: "UHT Milk 1L", SKU: "DAI-0001-0001", Barcode: "8991234500055", Category: "dairy", CostPriceCents: 95, SellingPriceCents: 159, DiscountPercent: 5, Stock: 80, ReorderLevel: 20, Unit: "btl"},
		{ID: "prd-eggs-10", Name: "Eggs 10 Pack", SKU: "GRO-0001-0001", Barcode: "8991234500062", Category: "grocery", CostPriceCents: 230, SellingPriceCents: 329, Stock: 30, ReorderLevel: 12, Unit: "pack"},
		{ID: "prd-sugar-1kg", Name: "Sugar 1kg", SKU: "GRO-0001-0002", Barcode: "8991234500079", Category: "grocery", CostPriceCents: 110, SellingPriceCents: 175, Stock: 8, ReorderLevel: 10, Unit: "bag"},
		{ID: "prd-soap-bar", Name: "Bath Soap Bar", SKU: "HOU-0001-0001", Barcode: "8991234500086", Category: "household", CostPriceCents: 45, SellingPriceCents: 89, TaxPercent: 10, Stock: 120, ReorderLevel: 24, Unit: "pcs"},
	}
	for _, p := range products {
		p.Status = domain.ProductStatusActive
		p.DiscountType = domain.DiscountTypePercentage
		p.CreatedAt = now
		p.UpdatedAt = now
		s.putProduct(p)
	}

	customer := domain.Customer{ID: "cus-demo", Name: "Demo Customer", Phone: "+15550100", CreatedAt: now, UpdatedAt: now}
	s.customersByID[customer.ID] = customer
	s.customerByPhone[customer.Phone] = customer.ID

	s.usersByUsername = seedUsers()
	return s
}

func (s *Store) putProduct(p domain.Product) {
	s.products[p.ID] = p
	if p.Barcode != "" {
		s.productByCode[p.Barcode] = p.ID
	}
	if p.SKU != "" {
		s.productBySKU[p.SKU] = p.ID
	}
}

// WithinTx serializes units of work behind the write lock. Every mutation
// made through the tx registers an undo step, replayed in reverse on failure.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txn{s: s}
	err := fn(ctx, t)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		t.rollback()
		return err
	}
	return nil
}

type txn struct {
	s    *Store
	undo []func()
}

func (t *txn) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *txn) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (t *txn) InsertProduct(_ context.Context, product domain.Product) error {
	s := t.s
	if _, exists := s.products[product.ID]; exists {
		return store.ErrDuplicate
	}
	if _, exists := s.productBySKU[product.SKU]; product.SKU != "" && exists {
		return store.ErrDuplicate
	}
	if _, exists := s.productByCode[product.Barcode]; product.Barcode != "" && exists {
		return store.ErrDuplicate
	}

	s.putProduct(product)
	t.undo = append(t.undo, func() {
		delete(s.products, product.ID)
		delete(s.productBySKU, product.SKU)
		delete(s.productByCode, product.Barcode)
	})
	return nil
}

func (t *txn) UpdateProduct(_ context.Context, product domain.Product) error {
	s := t.s
	prev, ok := s.products[product.ID]
	if !ok {
		return store.ErrNotFound
	}
	product.Stock = prev.Stock
	product.SKU = prev.SKU
	product.Barcode = prev.Barcode
	product.CreatedAt = prev.CreatedAt
	s.products[product.ID] = product
	t.undo = append(t.undo, func() { s.products[prev.ID] = prev })
	return nil
}

func (t *txn) InsertPriceChange(_ context.Context, change domain.PriceChange) error {
	s := t.s
	if change.ID == "" {
		change.ID = xid.New("prc")
	}
	if change.ChangedAt.IsZero() {
		change.ChangedAt = time.Now().UTC()
	}
	n := len(s.priceHistory)
	s.priceHistory = append(s.priceHistory, change)
	t.undo = append(t.undo, func() { s.priceHistory = s.priceHistory[:n] })
	return nil
}

func (t *txn) ApplyStockDelta(_ context.Context, productID string, delta int) (int, error) {
	s := t.s
	p, ok := s.products[productID]
	if !ok {
		return 0, store.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return p.Stock, store.ErrInsufficientStock
	}

	prev := p
	p.Stock += delta
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	t.undo = append(t.undo, func() { s.products[productID] = prev })
	return p.Stock, nil
}

func (t *txn) InsertInventoryLog(_ context.Context, entry domain.InventoryLogEntry) error {
	s := t.s
	if entry.ID == "" {
		entry.ID = xid.New("ilg")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	n := len(s.inventoryLogs)
	s.inventoryLogs = append(s.inventoryLogs, entry)
	t.undo = append(t.undo, func() { s.inventoryLogs = s.inventoryLogs[:n] })
	return nil
}

func (t *txn) GetSettings(_ context.Context) (*domain.Settings, error) {
	settings := t.s.settings
	return &settings, nil
}

func (t *txn) NextInvoiceSequence(_ context.Context) (string, int64, error) {
	s := t.s
	prev := s.settings
	seq := s.settings.InvoiceNextNumber
	if seq < 1 {
		seq = 1
	}
	s.settings.InvoiceNextNumber = seq + 1
	t.undo = append(t.undo, func() { s.settings = prev })
	return s.settings.InvoicePrefix, seq, nil
}

func (t *txn) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	c, ok := t.s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (t *txn) IncrementCustomerTotals(_ context.Context, purchase domain.CustomerPurchase) error {
	s := t.s
	c, ok := s.customersByID[purchase.CustomerID]
	if !ok {
		return store.ErrNotFound
	}
	prev := c
	c.TotalPurchases++
	c.TotalSpentCents += purchase.SpentCents
	c.LoyaltyPoints += purchase.LoyaltyPoints
	c.UpdatedAt = time.Now().UTC()
	s.customersByID[c.ID] = c
	t.undo = append(t.undo, func() { s.customersByID[prev.ID] = prev })
	return nil
}

func (t *txn) InsertSale(_ context.Context, sale domain.Sale) error {
	s := t.s
	if _, exists := s.salesByID[sale.ID]; exists {
		return store.ErrDuplicate
	}
	if sale.IdempotencyKey != "" {
		if _, exists := s.salesByIdem[sale.IdempotencyKey]; exists {
			return store.ErrDuplicate
		}
		s.salesByIdem[sale.IdempotencyKey] = sale.ID
	}
	s.salesByID[sale.ID] = cloneSale(sale)
	t.undo = append(t.undo, func() {
		delete(s.salesByID, sale.ID)
		if sale.IdempotencyKey != "" {
			delete(s.salesByIdem, sale.IdempotencyKey)
		}
	})
	return nil
}

func (t *txn) InsertAuditLog(_ context.Context, entry domain.AuditLog) error {
	s := t.s
	n := len(s.auditLogs)
	s.auditLogs = append(s.auditLogs, normalizeAudit(entry))
	t.undo = append(t.undo, func() { s.auditLogs = s.auditLogs[:n] })
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productByCode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := s.products[id]
	return &p, nil
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.SKU), search) &&
			!strings.Contains(p.Barcode, search) {
			continue
		}
		result = append(result, p)
	}

	slices.SortFunc(result, func(a, b domain.Product) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	page, total := paginate(result, filter.Page, filter.Limit)
	return page, total, nil
}

func (s *Store) CountProductsInCategory(_ context.Context, category string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, p := range s.products {
		if p.Category == category {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListLowStockProducts(_ context.Context, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if p.Status == domain.ProductStatusActive && p.Stock <= p.ReorderLevel {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int {
		if a.Stock == b.Stock {
			return strings.Compare(a.Name, b.Name)
		}
		return a.Stock - b.Stock
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListPriceHistory(_ context.Context, productID string, limit int) ([]domain.PriceChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PriceChange, 0, 8)
	for i := len(s.priceHistory) - 1; i >= 0; i-- {
		if s.priceHistory[i].ProductID == productID {
			result = append(result, s.priceHistory[i])
		}
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := cloneSale(sale)
	return &clone, nil
}

func (s *Store) FindSaleByIdempotency(_ context.Context, key string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.salesByIdem[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := cloneSale(s.salesByID[id])
	return &clone, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByID))
	for _, sale := range s.salesByID {
		if filter.CashierID != "" && sale.CashierID != filter.CashierID {
			continue
		}
		if filter.CustomerID != "" && sale.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if !withinRange(sale.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}
	slices.SortFunc(result, func(a, b domain.Sale) int {
		return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID)
	})
	page, total := paginate(result, filter.Page, filter.Limit)
	return page, total, nil
}

func (s *Store) SalesReport(_ context.Context, from, to time.Time, topLimit int) (*domain.SalesReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := &domain.SalesReport{From: from, To: to}
	payments := map[string]*domain.PaymentMethodSummary{}
	products := map[string]*domain.ProductSalesSummary{}
	cashiers := map[string]*domain.CashierSalesSummary{}
	for _, sale := range s.salesByID {
		if sale.Status != domain.SaleStatusCompleted || !withinRange(sale.CreatedAt, &from, &to) {
			continue
		}
		report.Transactions++
		report.SubtotalCents += sale.SubtotalCents
		report.DiscountCents += sale.TotalDiscountCents
		report.TaxCents += sale.TotalTaxCents
		report.RevenueCents += sale.GrandTotalCents

		for _, p := range sale.Payments {
			sum, ok := payments[p.Method]
			if !ok {
				sum = &domain.PaymentMethodSummary{Method: p.Method}
				payments[p.Method] = sum
			}
			sum.Payments++
			sum.AmountCents += p.AmountCents
		}

		for _, item := range sale.Items {
			cost := item.CostPriceCents * int64(item.Quantity)
			report.ItemsSold += int64(item.Quantity)
			report.CostCents += cost

			sum, ok := products[item.ProductID]
			if !ok {
				sum = &domain.ProductSalesSummary{ProductID: item.ProductID, ProductName: item.ProductName, ProductSKU: item.ProductSKU}
				products[item.ProductID] = sum
			}
			sum.Quantity += int64(item.Quantity)
			sum.RevenueCents += item.TotalCents
			sum.ProfitCents += item.SubtotalCents - item.DiscountCents - cost
		}

		sum, ok := cashiers[sale.CashierID]
		if !ok {
			sum = &domain.CashierSalesSummary{CashierID: sale.CashierID, CashierName: sale.CashierName}
			cashiers[sale.CashierID] = sum
		}
		sum.Transactions++
		sum.RevenueCents += sale.GrandTotalCents
	}

	report.ByPayment = make([]domain.PaymentMethodSummary, 0, len(payments))
	for _, sum := range payments {
		report.ByPayment = append(report.ByPayment, *sum)
	}
	slices.SortFunc(report.ByPayment, func(a, b domain.PaymentMethodSummary) int {
		return strings.Compare(a.Method, b.Method)
	})

	report.TopProducts = make([]domain.ProductSalesSummary, 0, len(products))
	for _, sum := range products {
		report.TopProducts = append(report.TopProducts, *sum)
	}
	slices.SortFunc(report.TopProducts, func(a, b domain.ProductSalesSummary) int {
		return byRevenue(a.RevenueCents, b.RevenueCents, a.ProductID, b.ProductID)
	})
	if topLimit > 0 && len(report.TopProducts) > topLimit {
		report.TopProducts = report.TopProducts[:topLimit]
	}

	report.ByCashier = make([]domain.CashierSalesSummary, 0, len(cashiers))
	for _, sum := range cashiers {
		report.ByCashier = append(report.ByCashier, *sum)
	}
	slices.SortFunc(report.ByCashier, func(a, b domain.CashierSalesSummary) int {
		return byRevenue(a.RevenueCents, b.RevenueCents, a.CashierID, b.CashierID)
	})
	return report, nil
}

func byRevenue(a, b int64, aID, bID string) int {
	if a == b {
		return strings.Compare(aID, bID)
	}
	if a > b {
		return -1
	}
	return 1
}

func (s *Store) ListInventoryLogs(_ context.Context, filter domain.InventoryLogFilter) ([]domain.InventoryLogEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InventoryLogEntry, 0, 64)
	for _, entry := range s.inventoryLogs {
		if filter.ProductID != "" && entry.ProductID != filter.ProductID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !withinRange(entry.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, entry)
	}
	// Entries are appended in commit order, so reversing keeps ties stable.
	slices.Reverse(result)
	page, total := paginate(result, filter.Page, filter.Limit)
	return page, total, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if customer.ID == "" {
		customer.ID = xid.New("cus")
	}
	if _, exists := s.customersByID[customer.ID]; exists {
		return nil, store.ErrDuplicate
	}
	if _, exists := s.customerByPhone[customer.Phone]; exists {
		return nil, store.ErrDuplicate
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now

	s.customersByID[customer.ID] = customer
	s.customerByPhone[customer.Phone] = customer.ID
	created := customer
	return &created, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (s *Store) ListCustomers(_ context.Context, filter store.CustomerFilter) ([]domain.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Customer, 0, len(s.customersByID))
	for _, c := range s.customersByID {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.Phone), search) {
			continue
		}
		result = append(result, c)
	}
	slices.SortFunc(result, func(a, b domain.Customer) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	page, total := paginate(result, filter.Page, filter.Limit)
	return page, total, nil
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if _, exists := s.suppliersByID[supplier.ID]; exists {
		return nil, store.ErrDuplicate
	}
	now := time.Now().UTC()
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = now
	}
	supplier.UpdatedAt = now
	s.suppliersByID[supplier.ID] = supplier
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sup, ok := s.suppliersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &sup, nil
}

func (s *Store) UpdateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.suppliersByID[supplier.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	supplier.CreatedAt = prev.CreatedAt
	supplier.UpdatedAt = time.Now().UTC()
	s.suppliersByID[supplier.ID] = supplier
	updated := supplier
	return &updated, nil
}

func (s *Store) ListSuppliers(_ context.Context, filter store.SupplierFilter) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	result := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, sup := range s.suppliersByID {
		if !sup.Active && !filter.IncludeInactive {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(sup.Name), search) &&
			!strings.Contains(strings.ToLower(sup.Phone), search) {
			continue
		}
		result = append(result, sup)
	}
	slices.SortFunc(result, func(a, b domain.Supplier) int {
		if a.Name == b.Name {
			return strings.Compare(a.ID, b.ID)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return result, nil
}

func (s *Store) GetSettings(_ context.Context) (*domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := s.settings
	return &settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.Settings) (*domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings.InvoiceNextNumber = s.settings.InvoiceNextNumber
	settings.UpdatedAt = time.Now().UTC()
	s.settings = settings
	updated := settings
	return &updated, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.auditLogs = append(s.auditLogs, normalizeAudit(entry))
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if filter.ActorID != "" && entry.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		if !withinRange(entry.CreatedAt, filter.From, filter.To) {
			continue
		}
		result = append(result, entry)
	}
	slices.Reverse(result)
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) FindUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.ErrDuplicate
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func normalizeAudit(entry domain.AuditLog) domain.AuditLog {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.Metadata = maps.Clone(entry.Metadata)
	return entry
}

func paginate[T any](items []T, page int, limit int) ([]T, int) {
	total := len(items)
	page, limit = store.NormalizePage(page, limit, 50, 0)
	start := (page - 1) * limit
	if start >= total {
		return []T{}, total
	}
	end := min(start+limit, total)
	return items[start:end], total
}

func withinRange(at time.Time, from *time.Time, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}

func newestFirst(a time.Time, b time.Time, aID string, bID string) int {
	if a.Equal(b) {
		return strings.Compare(bID, aID)
	}
	if a.After(b) {
		return -1
	}
	return 1
}

func cloneSale(src domain.Sale) domain.Sale {
	dst := src
	dst.Items = slices.Clone(src.Items)
	dst.Payments = slices.Clone(src.Payments)
	return dst
}
