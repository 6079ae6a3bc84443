package postgres

import (
	"context"
	"time"

	"retailpos/backend/internal/domain"
)

const completedInRange = `
	s.status = 'completed' AND s.created_at >= $1 AND s.created_at <= $2
`

func (s *Store) SalesReport(ctx context.Context, from, to time.Time, topLimit int) (*domain.SalesReport, error) {
	report := &domain.SalesReport{From: from, To: to}

	err := s.db.QueryRowContext(ctx, `
		SELECT count(*),
		       COALESCE(SUM(s.subtotal_cents), 0)::bigint,
		       COALESCE(SUM(s.total_discount_cents), 0)::bigint,
		       COALESCE(SUM(s.total_tax_cents), 0)::bigint,
		       COALESCE(SUM(s.grand_total_cents), 0)::bigint
		FROM sales s
		WHERE`+completedInRange, from, to,
	).Scan(&report.Transactions, &report.SubtotalCents, &report.DiscountCents, &report.TaxCents, &report.RevenueCents)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(si.quantity), 0)::bigint,
		       COALESCE(SUM(si.cost_price_cents * si.quantity), 0)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE`+completedInRange, from, to,
	).Scan(&report.ItemsSold, &report.CostCents)
	if err != nil {
		return nil, err
	}

	if report.ByPayment, err = s.paymentSummary(ctx, from, to); err != nil {
		return nil, err
	}
	if report.TopProducts, err = s.topProducts(ctx, from, to, topLimit); err != nil {
		return nil, err
	}
	if report.ByCashier, err = s.cashierSummary(ctx, from, to); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) paymentSummary(ctx context.Context, from, to time.Time) ([]domain.PaymentMethodSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p->>'method', count(*), COALESCE(SUM((p->>'amount_cents')::bigint), 0)::bigint
		FROM sales s, jsonb_array_elements(s.payments) p
		WHERE`+completedInRange+`
		GROUP BY 1
		ORDER BY 1
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.PaymentMethodSummary, 0, 3)
	for rows.Next() {
		var sum domain.PaymentMethodSummary
		if err := rows.Scan(&sum.Method, &sum.Payments, &sum.AmountCents); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

func (s *Store) topProducts(ctx context.Context, from, to time.Time, limit int) ([]domain.ProductSalesSummary, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT si.product_id, MIN(si.product_name), MIN(si.product_sku),
		       SUM(si.quantity)::bigint,
		       SUM(si.total_cents)::bigint,
		       SUM(si.subtotal_cents - si.discount_cents - si.cost_price_cents * si.quantity)::bigint
		FROM sale_items si
		JOIN sales s ON s.id = si.sale_id
		WHERE`+completedInRange+`
		GROUP BY si.product_id
		ORDER BY 5 DESC, 1
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ProductSalesSummary, 0, limit)
	for rows.Next() {
		var sum domain.ProductSalesSummary
		if err := rows.Scan(&sum.ProductID, &sum.ProductName, &sum.ProductSKU, &sum.Quantity,
			&sum.RevenueCents, &sum.ProfitCents); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}

func (s *Store) cashierSummary(ctx context.Context, from, to time.Time) ([]domain.CashierSalesSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.cashier_id, MIN(s.cashier_name), count(*), SUM(s.grand_total_cents)::bigint
		FROM sales s
		WHERE`+completedInRange+`
		GROUP BY s.cashier_id
		ORDER BY 4 DESC, 1
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CashierSalesSummary, 0, 8)
	for rows.Next() {
		var sum domain.CashierSalesSummary
		if err := rows.Scan(&sum.CashierID, &sum.CashierName, &sum.Transactions, &sum.RevenueCents); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}
