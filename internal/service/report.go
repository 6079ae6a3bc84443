package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"retailpos/backend/internal/domain"
)

const (
	defaultTopProducts = 10
	maxTopProducts     = 50
)

// SalesReport summarizes completed sales. A missing bound defaults to the
// current calendar day in the store time zone.
func (s *Service) SalesReport(ctx context.Context, filter domain.SalesReportFilter) (domain.SalesReport, error) {
	ctx, span := s.tracer.Start(ctx, "service.SalesReport")
	defer span.End()

	if _, err := requireRole(ctx, domain.RoleOwner, domain.RoleManager); err != nil {
		return domain.SalesReport{}, err
	}

	to := endOfDay(s.now().In(s.loc))
	if filter.To != nil {
		to = *filter.To
	}
	from := startOfDay(to.In(s.loc))
	if filter.From != nil {
		from = *filter.From
	}
	if to.Before(from) {
		return domain.SalesReport{}, validationError("date range end is before its start")
	}

	top := filter.TopLimit
	if top < 1 {
		top = defaultTopProducts
	}
	top = min(top, maxTopProducts)

	report, err := s.repo.SalesReport(ctx, from, to, top)
	if err != nil {
		recordSpanError(span, err)
		return domain.SalesReport{}, err
	}
	report.NetSalesCents = report.SubtotalCents - report.DiscountCents
	report.ProfitCents = report.NetSalesCents - report.CostCents
	if report.Transactions > 0 {
		report.AverageOrderCents = (report.RevenueCents + report.Transactions/2) / report.Transactions
	}

	span.SetAttributes(attribute.Int64("report.transactions", report.Transactions))
	return *report, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
