package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the bundled schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// WithinTx runs fn at READ COMMITTED. Stock and the invoice counter are only
// ever changed by conditional single-row updates, which take row locks and
// re-check their predicate after waiting, so no lost update is possible.
// Checkout takes the invoice counter row first, which serializes concurrent
// sales on it until commit and keeps invoice numbers gap-free.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return mapError(err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTxn{q: sqlTx}); err != nil {
		return mapError(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(err)
	}
	return nil
}

type pgTxn struct {
	q queryer
}

func (t *pgTxn) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.q, `WHERE id = $1`, id)
}

func (t *pgTxn) InsertProduct(ctx context.Context, p domain.Product) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO products (
			id, name, sku, barcode, category, brand, cost_price_cents, selling_price_cents,
			tax_percent, discount_percent, discount_type, stock, reorder_level, unit, status,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, p.ID, p.Name, p.SKU, p.Barcode, p.Category, p.Brand, p.CostPriceCents, p.SellingPriceCents,
		p.TaxPercent, p.DiscountPercent, p.DiscountType, p.Stock, p.ReorderLevel, p.Unit, p.Status,
		p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

func (t *pgTxn) UpdateProduct(ctx context.Context, p domain.Product) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, brand = $4, cost_price_cents = $5, selling_price_cents = $6,
		    tax_percent = $7, discount_percent = $8, discount_type = $9, reorder_level = $10,
		    unit = $11, status = $12, updated_at = $13
		WHERE id = $1
	`, p.ID, p.Name, p.Category, p.Brand, p.CostPriceCents, p.SellingPriceCents,
		p.TaxPercent, p.DiscountPercent, p.DiscountType, p.ReorderLevel,
		p.Unit, p.Status, p.UpdatedAt)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTxn) InsertPriceChange(ctx context.Context, c domain.PriceChange) error {
	if c.ID == "" {
		c.ID = xid.New("prc")
	}
	if c.ChangedAt.IsZero() {
		c.ChangedAt = time.Now().UTC()
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO price_history (
			id, product_id, product_sku, old_cost_price_cents, new_cost_price_cents,
			old_selling_price_cents, new_selling_price_cents, changed_by, changed_by_name, changed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.ProductID, c.ProductSKU, c.OldCostPriceCents, c.NewCostPriceCents,
		c.OldSellingPriceCents, c.NewSellingPriceCents, c.ChangedBy, c.ChangedByName, c.ChangedAt)
	return mapError(err)
}

func (t *pgTxn) ApplyStockDelta(ctx context.Context, productID string, delta int) (int, error) {
	var after int
	err := t.q.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $1, updated_at = now()
		WHERE id = $2 AND stock + $1 >= 0
		RETURNING stock
	`, delta, productID).Scan(&after)
	if err == nil {
		return after, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, mapError(err)
	}

	var observed int
	err = t.q.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&observed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, mapError(err)
	}
	return observed, store.ErrInsufficientStock
}

func (t *pgTxn) InsertInventoryLog(ctx context.Context, e domain.InventoryLogEntry) error {
	if e.ID == "" {
		e.ID = xid.New("ilg")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var cost any
	if e.CostPriceCents != nil {
		cost = *e.CostPriceCents
	}
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO inventory_logs (
			id, product_id, product_name, product_sku, action, quantity_before, quantity_change,
			quantity_after, reason, reference_type, reference_id, cost_price_cents,
			performed_by, performed_by_name, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, e.ID, e.ProductID, e.ProductName, e.ProductSKU, e.Action, e.QuantityBefore, e.QuantityChange,
		e.QuantityAfter, e.Reason, e.ReferenceType, e.ReferenceID, cost,
		e.PerformedBy, e.PerformedByName, e.CreatedAt)
	return mapError(err)
}

func (t *pgTxn) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return getSettings(ctx, t.q)
}

// NextInvoiceSequence holds the settings row lock until the unit commits.
func (t *pgTxn) NextInvoiceSequence(ctx context.Context) (string, int64, error) {
	var prefix string
	var seq int64
	err := t.q.QueryRowContext(ctx, `
		UPDATE settings
		SET invoice_next_number = invoice_next_number + 1, updated_at = now()
		WHERE id = 1
		RETURNING invoice_prefix, invoice_next_number - 1
	`).Scan(&prefix, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, fmt.Errorf("settings row missing: %w", store.ErrNotFound)
	}
	if err != nil {
		return "", 0, mapError(err)
	}
	return prefix, seq, nil
}

func (t *pgTxn) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, t.q, id)
}

func (t *pgTxn) IncrementCustomerTotals(ctx context.Context, purchase domain.CustomerPurchase) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE customers
		SET total_purchases = total_purchases + 1,
		    total_spent_cents = total_spent_cents + $2,
		    loyalty_points = loyalty_points + $3,
		    updated_at = now()
		WHERE id = $1
	`, purchase.CustomerID, purchase.SpentCents, purchase.LoyaltyPoints)
	if err != nil {
		return mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTxn) InsertSale(ctx context.Context, sale domain.Sale) error {
	payments, err := json.Marshal(sale.Payments)
	if err != nil {
		return err
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT INTO sales (
			id, invoice_number, subtotal_cents, total_discount_cents, total_tax_cents, grand_total_cents,
			payments, amount_paid_cents, change_cents, status, cashier_id, cashier_name,
			customer_id, customer_name, customer_phone, notes, counter, idempotency_key, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, sale.ID, sale.InvoiceNumber, sale.SubtotalCents, sale.TotalDiscountCents, sale.TotalTaxCents, sale.GrandTotalCents,
		payments, sale.AmountPaidCents, sale.ChangeCents, sale.Status, sale.CashierID, sale.CashierName,
		nullIfEmpty(sale.CustomerID), sale.CustomerName, sale.CustomerPhone, sale.Notes, sale.Counter,
		nullIfEmpty(sale.IdempotencyKey), sale.CreatedAt)
	if err != nil {
		return mapError(err)
	}

	for i, item := range sale.Items {
		if _, err := t.q.ExecContext(ctx, `
			INSERT INTO sale_items (
				sale_id, position, product_id, product_name, product_sku, barcode, quantity,
				unit_price_cents, cost_price_cents, discount_percent, discount_cents,
				tax_percent, tax_cents, subtotal_cents, total_cents
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, sale.ID, i, item.ProductID, item.ProductName, item.ProductSKU, item.Barcode, item.Quantity,
			item.UnitPriceCents, item.CostPriceCents, item.DiscountPercent, item.DiscountCents,
			item.TaxPercent, item.TaxCents, item.SubtotalCents, item.TotalCents); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (t *pgTxn) InsertAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAuditLog(ctx, t.q, entry)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `WHERE id = $1`, id)
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `WHERE barcode = $1`, barcode)
}

const productColumns = `
	id, name, sku, barcode, category, brand, cost_price_cents, selling_price_cents,
	tax_percent, discount_percent, discount_type, stock, reorder_level, unit, status,
	created_at, updated_at
`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.Category, &p.Brand, &p.CostPriceCents, &p.SellingPriceCents,
		&p.TaxPercent, &p.DiscountPercent, &p.DiscountType, &p.Stock, &p.ReorderLevel, &p.Unit, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getProduct(ctx context.Context, q queryer, where string, arg any) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, int, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, 50, 0)
	search := likePattern(filter.Search)

	const where = `
		WHERE ($1 = '' OR category = $1)
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR name ILIKE $3 OR sku ILIKE $3 OR barcode ILIKE $3)
	`
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products`+where,
		filter.Category, filter.Status, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products`+where+`
		ORDER BY name, id
		LIMIT $4 OFFSET $5
	`, filter.Category, filter.Status, search, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (s *Store) CountProductsInCategory(ctx context.Context, category string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM products WHERE category = $1`, category).Scan(&count)
	return count, err
}

func (s *Store) ListLowStockProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products
		WHERE status = 'active' AND stock <= reorder_level
		ORDER BY stock ASC, name
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) ListPriceHistory(ctx context.Context, productID string, limit int) ([]domain.PriceChange, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_sku, old_cost_price_cents, new_cost_price_cents,
		       old_selling_price_cents, new_selling_price_cents, changed_by, changed_by_name, changed_at
		FROM price_history
		WHERE product_id = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := make([]domain.PriceChange, 0, 8)
	for rows.Next() {
		var c domain.PriceChange
		if err := rows.Scan(&c.ID, &c.ProductID, &c.ProductSKU, &c.OldCostPriceCents, &c.NewCostPriceCents,
			&c.OldSellingPriceCents, &c.NewSellingPriceCents, &c.ChangedBy, &c.ChangedByName, &c.ChangedAt); err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

const saleColumns = `
	id, invoice_number, subtotal_cents, total_discount_cents, total_tax_cents, grand_total_cents,
	payments, amount_paid_cents, change_cents, status, cashier_id, cashier_name,
	COALESCE(customer_id, ''), customer_name, customer_phone, notes, counter,
	COALESCE(idempotency_key, ''), created_at
`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var payments []byte
	err := row.Scan(&sale.ID, &sale.InvoiceNumber, &sale.SubtotalCents, &sale.TotalDiscountCents, &sale.TotalTaxCents,
		&sale.GrandTotalCents, &payments, &sale.AmountPaidCents, &sale.ChangeCents, &sale.Status, &sale.CashierID,
		&sale.CashierName, &sale.CustomerID, &sale.CustomerName, &sale.CustomerPhone, &sale.Notes, &sale.Counter,
		&sale.IdempotencyKey, &sale.CreatedAt)
	if err != nil {
		return sale, err
	}
	if err := json.Unmarshal(payments, &sale.Payments); err != nil {
		return sale, fmt.Errorf("decode payments for sale %s: %w", sale.ID, err)
	}
	return sale, nil
}

func (s *Store) getSale(ctx context.Context, where string, arg any) (*domain.Sale, error) {
	sale, err := scanSale(s.db.QueryRowContext(ctx, `SELECT `+saleColumns+` FROM sales `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.loadSaleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	return s.getSale(ctx, `WHERE id = $1`, id)
}

func (s *Store) FindSaleByIdempotency(ctx context.Context, key string) (*domain.Sale, error) {
	return s.getSale(ctx, `WHERE idempotency_key = $1`, key)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, 50, 0)

	const where = `
		WHERE ($1 = '' OR cashier_id = $1)
		  AND ($2 = '' OR customer_id = $2)
		  AND ($3 = '' OR status = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at <= $5)
	`
	args := []any{filter.CashierID, filter.CustomerID, filter.Status, nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $6 OFFSET $7
	`, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	sales := make([]domain.Sale, 0, limit)
	ids := make([]string, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, 0, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, 0, err
	}
	_ = rows.Close()

	items, err := s.loadSaleItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, total, nil
}

func (s *Store) loadSaleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_id, product_id, product_name, product_sku, barcode, quantity,
		       unit_price_cents, cost_price_cents, discount_percent, discount_cents,
		       tax_percent, tax_cents, subtotal_cents, total_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, position
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var saleID string
		var item domain.SaleItem
		if err := rows.Scan(&saleID, &item.ProductID, &item.ProductName, &item.ProductSKU, &item.Barcode, &item.Quantity,
			&item.UnitPriceCents, &item.CostPriceCents, &item.DiscountPercent, &item.DiscountCents,
			&item.TaxPercent, &item.TaxCents, &item.SubtotalCents, &item.TotalCents); err != nil {
			return nil, err
		}
		result[saleID] = append(result[saleID], item)
	}
	return result, rows.Err()
}

func (s *Store) ListInventoryLogs(ctx context.Context, filter domain.InventoryLogFilter) ([]domain.InventoryLogEntry, int, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, 50, 0)

	const where = `
		WHERE ($1 = '' OR product_id = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at <= $4)
	`
	args := []any{filter.ProductID, filter.Action, nullTime(filter.From), nullTime(filter.To)}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM inventory_logs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, product_sku, action, quantity_before, quantity_change,
		       quantity_after, reason, reference_type, reference_id, cost_price_cents,
		       performed_by, performed_by_name, created_at
		FROM inventory_logs`+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $5 OFFSET $6
	`, append(args, limit, (page-1)*limit)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	logs := make([]domain.InventoryLogEntry, 0, limit)
	for rows.Next() {
		var e domain.InventoryLogEntry
		var cost sql.NullInt64
		if err := rows.Scan(&e.ID, &e.ProductID, &e.ProductName, &e.ProductSKU, &e.Action, &e.QuantityBefore,
			&e.QuantityChange, &e.QuantityAfter, &e.Reason, &e.ReferenceType, &e.ReferenceID, &cost,
			&e.PerformedBy, &e.PerformedByName, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if cost.Valid {
			v := cost.Int64
			e.CostPriceCents = &v
		}
		logs = append(logs, e)
	}
	return logs, total, rows.Err()
}

const customerColumns = `
	id, name, phone, email, address, loyalty_points, total_purchases, total_spent_cents,
	notes, created_at, updated_at
`

func scanCustomer(row rowScanner) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address, &c.LoyaltyPoints, &c.TotalPurchases,
		&c.TotalSpentCents, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func getCustomer(ctx context.Context, q queryer, id string) (*domain.Customer, error) {
	c, err := scanCustomer(q.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, c domain.Customer) (*domain.Customer, error) {
	if c.ID == "" {
		c.ID = xid.New("cus")
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (
			id, name, phone, email, address, loyalty_points, total_purchases, total_spent_cents,
			notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.Name, c.Phone, c.Email, c.Address, c.LoyaltyPoints, c.TotalPurchases, c.TotalSpentCents,
		c.Notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &c, nil
}

func (s *Store) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	return getCustomer(ctx, s.db, id)
}

func (s *Store) ListCustomers(ctx context.Context, filter store.CustomerFilter) ([]domain.Customer, int, error) {
	page, limit := store.NormalizePage(filter.Page, filter.Limit, 50, 0)
	search := likePattern(filter.Search)

	const where = ` WHERE ($1 = '' OR name ILIKE $1 OR phone ILIKE $1)`
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM customers`+where, search).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers`+where+`
		ORDER BY name, id
		LIMIT $2 OFFSET $3
	`, search, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, limit)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

const supplierColumns = `
	id, name, contact_person, phone, email, address, notes, active, created_at, updated_at
`

func scanSupplier(row rowScanner) (domain.Supplier, error) {
	var sup domain.Supplier
	err := row.Scan(&sup.ID, &sup.Name, &sup.ContactPerson, &sup.Phone, &sup.Email, &sup.Address, &sup.Notes,
		&sup.Active, &sup.CreatedAt, &sup.UpdatedAt)
	return sup, err
}

func (s *Store) CreateSupplier(ctx context.Context, sup domain.Supplier) (*domain.Supplier, error) {
	if sup.ID == "" {
		sup.ID = xid.New("sup")
	}
	now := time.Now().UTC()
	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = now
	}
	sup.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, contact_person, phone, email, address, notes, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, sup.ID, sup.Name, sup.ContactPerson, sup.Phone, sup.Email, sup.Address, sup.Notes,
		sup.Active, sup.CreatedAt, sup.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return &sup, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	sup, err := scanSupplier(s.db.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sup, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, sup domain.Supplier) (*domain.Supplier, error) {
	updated, err := scanSupplier(s.db.QueryRowContext(ctx, `
		UPDATE suppliers
		SET name = $2, contact_person = $3, phone = $4, email = $5, address = $6, notes = $7,
		    active = $8, updated_at = now()
		WHERE id = $1
		RETURNING `+supplierColumns,
		sup.ID, sup.Name, sup.ContactPerson, sup.Phone, sup.Email, sup.Address, sup.Notes, sup.Active))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &updated, nil
}

func (s *Store) ListSuppliers(ctx context.Context, filter store.SupplierFilter) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+supplierColumns+` FROM suppliers
		WHERE ($1 OR active)
		  AND ($2 = '' OR name ILIKE $2 OR phone ILIKE $2)
		ORDER BY name, id
	`, filter.IncludeInactive, likePattern(filter.Search))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 16)
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	return suppliers, rows.Err()
}

func getSettings(ctx context.Context, q queryer) (*domain.Settings, error) {
	var st domain.Settings
	err := q.QueryRowContext(ctx, `
		SELECT store_name, currency_symbol, invoice_prefix, invoice_next_number, low_stock_threshold,
		       enable_loyalty, loyalty_points_per_currency, receipt_footer, updated_at
		FROM settings
		WHERE id = 1
	`).Scan(&st.StoreName, &st.CurrencySymbol, &st.InvoicePrefix, &st.InvoiceNextNumber, &st.LowStockThreshold,
		&st.EnableLoyalty, &st.LoyaltyPointsPerCurrency, &st.ReceiptFooter, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.Settings, error) {
	return getSettings(ctx, s.db)
}

func (s *Store) UpdateSettings(ctx context.Context, st domain.Settings) (*domain.Settings, error) {
	var updated domain.Settings
	err := s.db.QueryRowContext(ctx, `
		UPDATE settings
		SET store_name = $1, currency_symbol = $2, invoice_prefix = $3, low_stock_threshold = $4,
		    enable_loyalty = $5, loyalty_points_per_currency = $6, receipt_footer = $7, updated_at = now()
		WHERE id = 1
		RETURNING store_name, currency_symbol, invoice_prefix, invoice_next_number, low_stock_threshold,
		          enable_loyalty, loyalty_points_per_currency, receipt_footer, updated_at
	`, st.StoreName, st.CurrencySymbol, st.InvoicePrefix, st.LowStockThreshold,
		st.EnableLoyalty, st.LoyaltyPointsPerCurrency, st.ReceiptFooter,
	).Scan(&updated.StoreName, &updated.CurrencySymbol, &updated.InvoicePrefix, &updated.InvoiceNextNumber,
		&updated.LowStockThreshold, &updated.EnableLoyalty, &updated.LoyaltyPointsPerCurrency,
		&updated.ReceiptFooter, &updated.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &updated, nil
}

func insertAuditLog(ctx context.Context, q queryer, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("aud")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_name, actor_role, action, entity, entity_id, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.ActorID, entry.ActorName, entry.ActorRole, entry.Action, entry.Entity, entry.EntityID,
		entry.Description, raw, entry.CreatedAt)
	return mapError(err)
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	return insertAuditLog(ctx, s.db, entry)
}

func (s *Store) ListAuditLogs(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_name, actor_role, action, entity, entity_id, description, metadata, created_at
		FROM audit_logs
		WHERE ($1 = '' OR actor_id = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at <= $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, filter.ActorID, filter.Action, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		var raw []byte
		if err := rows.Scan(&entry.ID, &entry.ActorID, &entry.ActorName, &entry.ActorRole, &entry.Action,
			&entry.Entity, &entry.EntityID, &entry.Description, &raw, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata %s: %w", entry.ID, err)
			}
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, name, password_hash, role, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Name, &u.PasswordHash, &u.Role, &u.Active, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, u domain.UserAccount) error {
	if u.ID == "" {
		u.ID = xid.New("usr")
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, name, password_hash, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Username, u.Name, u.PasswordHash, u.Role, u.Active, u.CreatedAt)
	return mapError(err)
}

// mapError folds driver errors into the store sentinels. Serialization
// failures and deadlocks become ErrConflict so callers can retry the unit.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s", store.ErrDuplicate, pgErr.ConstraintName)
		case "23514":
			if strings.Contains(pgErr.ConstraintName, "stock") {
				return store.ErrInsufficientStock
			}
		}
	}
	return err
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func likePattern(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return ""
	}
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(search) + "%"
}
