package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/invoice"
	"retailpos/backend/internal/ledger"
	"retailpos/backend/internal/money"
	"retailpos/backend/internal/store"
	"retailpos/backend/internal/xid"
)

// CreateSale finalizes a cart as one unit of work: invoice number, stock
// decrements with their log rows, the sale record, customer totals and the
// audit entry all commit together or not at all.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.CreateSaleResponse, error) {
	ctx, span := s.tracer.Start(ctx, "service.CreateSale")
	defer span.End()

	actor, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager, domain.RoleCashier)
	if err != nil {
		return domain.CreateSaleResponse{}, err
	}

	req = normalizeSaleRequest(req)
	if err := validateSaleRequest(req); err != nil {
		return domain.CreateSaleResponse{}, err
	}
	span.SetAttributes(attribute.Int("sale.lines", len(req.Lines)))

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey)
		if err == nil {
			return toSaleResponse(existing, true), nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return domain.CreateSaleResponse{}, classify("lookup idempotency key", err)
		}
	}

	if s.saleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.saleTimeout)
		defer cancel()
	}

	var sale domain.Sale
	var touched []domain.Product
	err = s.runAtomic(ctx, "create sale", func(ctx context.Context, tx store.Tx) error {
		var err error
		sale, touched, err = s.buildSale(ctx, tx, req, actor)
		return err
	})
	if err != nil {
		if req.IdempotencyKey != "" && errors.Is(err, store.ErrDuplicate) {
			if existing, findErr := s.repo.FindSaleByIdempotency(ctx, req.IdempotencyKey); findErr == nil {
				return toSaleResponse(existing, true), nil
			}
		}
		recordSpanError(span, err)
		return domain.CreateSaleResponse{}, err
	}

	s.catalog.Invalidate(ctx, touched...)
	span.SetAttributes(attribute.String("sale.invoice", sale.InvoiceNumber), attribute.Int64("sale.grand_total_cents", sale.GrandTotalCents))
	log.Printf("[service] sale committed id=%s invoice=%s total=%d cashier=%s", sale.ID, sale.InvoiceNumber, sale.GrandTotalCents, actor.ID)
	return toSaleResponse(&sale, false), nil
}

func (s *Service) buildSale(ctx context.Context, tx store.Tx, req domain.CreateSaleRequest, actor domain.Actor) (domain.Sale, []domain.Product, error) {
	settings, err := tx.GetSettings(ctx)
	if err != nil {
		return domain.Sale{}, nil, fmt.Errorf("load settings: %w", err)
	}

	prefix, seq, err := tx.NextInvoiceSequence(ctx)
	if err != nil {
		return domain.Sale{}, nil, fmt.Errorf("allocate invoice number: %w", err)
	}
	now := s.now()
	invoiceNumber := invoice.Format(prefix, now.In(s.loc), seq)
	saleID := xid.New("sale")

	items := make([]domain.SaleItem, 0, len(req.Lines))
	lines := make([]money.Line, 0, len(req.Lines))
	reservations := make([]ledger.Reservation, 0, len(req.Lines))
	for i, line := range req.Lines {
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return domain.Sale{}, nil, fmt.Errorf("product %s: %w", line.ProductID, err)
		}
		if product.Status != domain.ProductStatusActive {
			return domain.Sale{}, nil, validationError("product %s is not available for sale", product.Name)
		}
		if !validPercent(product.DiscountPercent) || !validPercent(product.TaxPercent) {
			return domain.Sale{}, nil, validationError("product %s has out of range tax or discount", product.Name)
		}

		unitPrice := product.SellingPriceCents
		if line.UnitPriceOverride != nil {
			unitPrice = *line.UnitPriceOverride
		}
		calc, err := money.LineTotal(unitPrice, line.Quantity, product.DiscountPercent, product.TaxPercent)
		if err != nil {
			return domain.Sale{}, nil, validationError("line %d: amount for %s is out of range", i+1, product.Name)
		}
		lines = append(lines, calc)
		items = append(items, domain.SaleItem{
			ProductID:       product.ID,
			ProductName:     product.Name,
			ProductSKU:      product.SKU,
			Barcode:         product.Barcode,
			Quantity:        line.Quantity,
			UnitPriceCents:  unitPrice,
			CostPriceCents:  product.CostPriceCents,
			DiscountPercent: product.DiscountPercent,
			DiscountCents:   calc.DiscountCents,
			TaxPercent:      product.TaxPercent,
			TaxCents:        calc.TaxCents,
			SubtotalCents:   calc.SubtotalCents,
			TotalCents:      calc.TotalCents,
		})
		reservations = append(reservations, ledger.Reservation{ProductID: product.ID, Quantity: line.Quantity})
	}

	totals, err := money.SaleTotals(lines)
	if err != nil {
		return domain.Sale{}, nil, validationError("sale total is out of range")
	}
	amountPaid, err := paymentTotal(req.Payments)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	if amountPaid < totals.GrandTotalCents {
		return domain.Sale{}, nil, validationError("payments of %s do not cover total %s",
			money.Format(amountPaid, settings.CurrencySymbol), money.Format(totals.GrandTotalCents, settings.CurrencySymbol))
	}

	movements, err := s.ledger.ReserveLines(ctx, tx, reservations, ledger.Reference{
		Type:   domain.ReferenceTypeSale,
		ID:     saleID,
		Reason: "Sale: " + invoiceNumber,
	}, actor)
	if err != nil {
		return domain.Sale{}, nil, err
	}

	sale := domain.Sale{
		ID:                 saleID,
		InvoiceNumber:      invoiceNumber,
		Items:              items,
		SubtotalCents:      totals.SubtotalCents,
		TotalDiscountCents: totals.DiscountCents,
		TotalTaxCents:      totals.TaxCents,
		GrandTotalCents:    totals.GrandTotalCents,
		Payments:           req.Payments,
		AmountPaidCents:    amountPaid,
		ChangeCents:        money.ChangeDue(amountPaid, totals.GrandTotalCents),
		Status:             domain.SaleStatusCompleted,
		CashierID:          actor.ID,
		CashierName:        actor.Name,
		Notes:              req.Notes,
		Counter:            req.Counter,
		IdempotencyKey:     req.IdempotencyKey,
		CreatedAt:          now.UTC(),
	}

	var customer *domain.Customer
	if req.CustomerID != "" {
		customer, err = tx.GetCustomer(ctx, req.CustomerID)
		if err != nil {
			return domain.Sale{}, nil, fmt.Errorf("customer %s: %w", req.CustomerID, err)
		}
		sale.CustomerID = customer.ID
		sale.CustomerName = customer.Name
		sale.CustomerPhone = customer.Phone
	}

	if err := tx.InsertSale(ctx, sale); err != nil {
		return domain.Sale{}, nil, fmt.Errorf("insert sale: %w", err)
	}

	if customer != nil {
		points := int64(0)
		if settings.EnableLoyalty {
			points = money.LoyaltyPoints(sale.GrandTotalCents, settings.LoyaltyPointsPerCurrency)
		}
		if err := tx.IncrementCustomerTotals(ctx, domain.CustomerPurchase{
			CustomerID:    customer.ID,
			SpentCents:    sale.GrandTotalCents,
			LoyaltyPoints: points,
		}); err != nil {
			return domain.Sale{}, nil, fmt.Errorf("update customer totals: %w", err)
		}
	}

	if err := tx.InsertAuditLog(ctx, s.auditEntry(actor, domain.AuditSale, "sale", sale.ID,
		fmt.Sprintf("Created sale: %s - Total: %s", invoiceNumber, money.Format(sale.GrandTotalCents, settings.CurrencySymbol)),
		map[string]any{
			"invoice_number":    invoiceNumber,
			"grand_total_cents": sale.GrandTotalCents,
			"item_count":        len(items),
		})); err != nil {
		return domain.Sale{}, nil, fmt.Errorf("write audit entry: %w", err)
	}

	touched := make([]domain.Product, 0, len(movements))
	for _, m := range movements {
		touched = append(touched, m.Product)
	}
	return sale, touched, nil
}

func normalizeSaleRequest(req domain.CreateSaleRequest) domain.CreateSaleRequest {
	lines := make([]domain.SaleLineRequest, 0, len(req.Lines))
	for _, line := range req.Lines {
		line.ProductID = strings.TrimSpace(line.ProductID)
		lines = append(lines, line)
	}
	req.Lines = lines

	payments := make([]domain.Payment, 0, len(req.Payments))
	for _, p := range req.Payments {
		p.Method = strings.ToLower(strings.TrimSpace(p.Method))
		p.Reference = strings.TrimSpace(p.Reference)
		payments = append(payments, p)
	}
	req.Payments = payments

	req.CustomerID = strings.TrimSpace(req.CustomerID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.Notes = strings.TrimSpace(req.Notes)
	req.Counter = strings.TrimSpace(req.Counter)
	return req
}

func validateSaleRequest(req domain.CreateSaleRequest) error {
	if len(req.Lines) == 0 {
		return validationError("cart is empty")
	}
	for i, line := range req.Lines {
		if line.ProductID == "" {
			return validationError("line %d: product_id is required", i+1)
		}
		if line.Quantity < 1 {
			return validationError("line %d: quantity must be at least 1", i+1)
		}
		if line.Quantity > maxLineQuantity {
			return validationError("line %d: quantity must not exceed %d", i+1, maxLineQuantity)
		}
		if line.UnitPriceOverride != nil && *line.UnitPriceOverride < 0 {
			return validationError("line %d: unit price must not be negative", i+1)
		}
		if line.UnitPriceOverride != nil && *line.UnitPriceOverride > money.MaxAmountCents {
			return validationError("line %d: unit price is out of range", i+1)
		}
	}

	if len(req.Payments) == 0 {
		return validationError("at least one payment is required")
	}
	for i, p := range req.Payments {
		if !isSupportedPaymentMethod(p.Method) {
			return validationError("payment %d: unsupported method %q", i+1, p.Method)
		}
		if p.AmountCents < 0 {
			return validationError("payment %d: amount must not be negative", i+1)
		}
	}
	_, err := paymentTotal(req.Payments)
	return err
}

// maxLineQuantity keeps a line's stock delta inside the INTEGER stock column.
const maxLineQuantity = 1_000_000

func paymentTotal(payments []domain.Payment) (int64, error) {
	amounts := make([]int64, 0, len(payments))
	for _, p := range payments {
		amounts = append(amounts, p.AmountCents)
	}
	total, err := money.AddCents(amounts...)
	if err != nil {
		return 0, validationError("payments total is out of range")
	}
	return total, nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentMobile:
		return true
	default:
		return false
	}
}

func toSaleResponse(sale *domain.Sale, duplicate bool) domain.CreateSaleResponse {
	return domain.CreateSaleResponse{
		SaleID:          sale.ID,
		InvoiceNumber:   sale.InvoiceNumber,
		GrandTotalCents: sale.GrandTotalCents,
		ChangeCents:     sale.ChangeCents,
		Duplicate:       duplicate,
	}
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) (domain.SaleListResponse, error) {
	filter.Page, filter.Limit = store.NormalizePage(filter.Page, filter.Limit, 50, 200)
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return domain.SaleListResponse{}, validationError("date range end is before its start")
	}

	sales, total, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{
		Sales:      sales,
		Pagination: domain.NewPagination(filter.Page, filter.Limit, total),
	}, nil
}

const receiptWidth = 40

func (s *Service) Receipt(ctx context.Context, saleID string) (domain.ReceiptResponse, error) {
	sale, err := s.repo.GetSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.ReceiptResponse{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return domain.ReceiptResponse{}, err
	}

	return domain.ReceiptResponse{
		SaleID:        sale.ID,
		InvoiceNumber: sale.InvoiceNumber,
		PreviewText:   renderReceipt(*sale, *settings, s.loc),
	}, nil
}
