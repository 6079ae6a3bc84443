package service

import (
	"fmt"
	"strings"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/money"
)

func renderReceipt(sale domain.Sale, settings domain.Settings, loc *time.Location) string {
	sym := settings.CurrencySymbol
	rule := strings.Repeat("-", receiptWidth)

	var b strings.Builder
	b.WriteString(center(settings.StoreName) + "\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Invoice: %s\n", sale.InvoiceNumber)
	fmt.Fprintf(&b, "Date:    %s\n", sale.CreatedAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Cashier: %s\n", sale.CashierName)
	if sale.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", sale.CustomerName)
	}
	b.WriteString(rule + "\n")

	for _, item := range sale.Items {
		b.WriteString(item.ProductName + "\n")
		b.WriteString(row(fmt.Sprintf("  %d x %s", item.Quantity, money.Format(item.UnitPriceCents, sym)), money.Format(item.SubtotalCents, sym)))
		if item.DiscountCents > 0 {
			b.WriteString(row(fmt.Sprintf("  Disc %.4g%%", item.DiscountPercent), money.Format(-item.DiscountCents, sym)))
		}
		if item.TaxCents > 0 {
			b.WriteString(row(fmt.Sprintf("  Tax %.4g%%", item.TaxPercent), money.Format(item.TaxCents, sym)))
		}
	}

	b.WriteString(rule + "\n")
	b.WriteString(row("Subtotal", money.Format(sale.SubtotalCents, sym)))
	if sale.TotalDiscountCents > 0 {
		b.WriteString(row("Discount", money.Format(-sale.TotalDiscountCents, sym)))
	}
	if sale.TotalTaxCents > 0 {
		b.WriteString(row("Tax", money.Format(sale.TotalTaxCents, sym)))
	}
	b.WriteString(row("TOTAL", money.Format(sale.GrandTotalCents, sym)))
	for _, p := range sale.Payments {
		b.WriteString(row("Paid ("+p.Method+")", money.Format(p.AmountCents, sym)))
	}
	b.WriteString(row("Change", money.Format(sale.ChangeCents, sym)))

	if settings.ReceiptFooter != "" {
		b.WriteString(rule + "\n")
		b.WriteString(center(settings.ReceiptFooter) + "\n")
	}
	return b.String()
}

func row(label string, amount string) string {
	gap := receiptWidth - len(label) - len(amount)
	if gap < 1 {
		gap = 1
	}
	return label + strings.Repeat(" ", gap) + amount + "\n"
}

func center(text string) string {
	if len(text) >= receiptWidth {
		return text
	}
	return strings.Repeat(" ", (receiptWidth-len(text))/2) + text
}
