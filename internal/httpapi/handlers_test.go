package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, service.Options{Location: time.UTC})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", time.UTC)
}

// do sends a request through the full handler chain. Mutating requests get a
// fresh CSRF token unless the caller already set one.
func do(t *testing.T, api *API, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if method == http.MethodPost || method == http.MethodPut {
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
	}
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (status %d)", err, rec.Code)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "cashier", Password: "cashier123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.LoginResponse](t, rec)
	if resp.AccessToken == "" || resp.Role != domain.RoleCashier || resp.Name != "Front Cashier" {
		t.Fatalf("unexpected login response %+v", resp)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{Username: "owner", Password: "wrongpassword"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := do(t, api, http.MethodGet, "/api/v1/products", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_ListWithPagination(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := do(t, api, http.MethodGet, "/api/v1/products?limit=3", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[struct {
		Products   []domain.Product  `json:"products"`
		Pagination domain.Pagination `json:"pagination"`
	}](t, rec)
	if len(body.Products) != 3 || body.Pagination.Total != 8 || body.Pagination.Pages != 3 {
		t.Fatalf("unexpected page: %d products, pagination %+v", len(body.Products), body.Pagination)
	}
}

func TestHandleCatalog_BarcodeLookup(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := do(t, api, http.MethodGet, "/api/v1/catalog/barcode/8991234500017", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]domain.ProductSnapshot](t, rec)
	if body["product"].ID != "prd-coffee-250" {
		t.Fatalf("unexpected product %+v", body["product"])
	}

	rec = do(t, api, http.MethodGet, "/api/v1/catalog/barcode/0000000000000", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown barcode, got %d", rec.Code)
	}
}

func TestHandleSales_CreateAndReceipt(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", token, domain.CreateSaleRequest{
		Lines:    []domain.SaleLineRequest{{ProductID: "prd-coffee-250", Quantity: 2}},
		Payments: []domain.Payment{{Method: "cash", AmountCents: 2000}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	sale := decodeBody[domain.CreateSaleResponse](t, rec)
	if sale.GrandTotalCents != 1978 || sale.ChangeCents != 22 {
		t.Fatalf("unexpected totals %+v", sale)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/sales/"+sale.SaleID+"/receipt", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	receipt := decodeBody[domain.ReceiptResponse](t, rec)
	if !strings.Contains(receipt.PreviewText, sale.InvoiceNumber) {
		t.Fatalf("receipt does not mention invoice %s:\n%s", sale.InvoiceNumber, receipt.PreviewText)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/sales/sale-missing", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sale, got %d", rec.Code)
	}
}

func TestHandleSales_InsufficientStockReturnsConflict(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", token, domain.CreateSaleRequest{
		Lines:    []domain.SaleLineRequest{{ProductID: "prd-sugar-1kg", Quantity: 9}},
		Payments: []domain.Payment{{Method: "cash", AmountCents: 10000}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]any](t, rec)
	if body["product_id"] != "prd-sugar-1kg" || body["available"] != float64(8) || body["requested"] != float64(9) {
		t.Fatalf("unexpected shortfall body %v", body)
	}
}

func TestHandleSales_ValidationReturnsBadRequest(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", token, domain.CreateSaleRequest{
		Payments: []domain.Payment{{Method: "cash", AmountCents: 100}},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty cart, got %d", rec.Code)
	}
}

func TestHandleSales_IdempotencyHeaderReplays(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")
	payload := domain.CreateSaleRequest{
		Lines:    []domain.SaleLineRequest{{ProductID: "prd-water-600", Quantity: 1}},
		Payments: []domain.Payment{{Method: "card", AmountCents: 99}},
	}

	send := func() *httptest.ResponseRecorder {
		body, _ := json.Marshal(payload)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("X-CSRF-Token", fetchCSRFToken(t, api))
		req.Header.Set("Idempotency-Key", "till-2-0042")
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		return rec
	}

	first := send()
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", first.Code, first.Body.String())
	}
	second := send()
	if second.Code != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", second.Code)
	}
	a := decodeBody[domain.CreateSaleResponse](t, first)
	b := decodeBody[domain.CreateSaleResponse](t, second)
	if !b.Duplicate || a.SaleID != b.SaleID {
		t.Fatalf("expected replay of %s, got %+v", a.SaleID, b)
	}
}

func TestHandleInventory_RoleChecks(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	managerToken := loginAs(t, api, "manager", "manager123")
	adjustment := domain.InventoryAdjustmentRequest{
		ProductID: "prd-bread-white",
		Action:    domain.InventoryDamage,
		Quantity:  3,
		Reason:    "crushed in delivery",
	}

	rec := do(t, api, http.MethodPost, "/api/v1/inventory/adjustments", cashierToken, adjustment)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/inventory/adjustments", managerToken, adjustment)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for manager, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	resp := decodeBody[domain.InventoryAdjustmentResponse](t, rec)
	if resp.QuantityBefore != 25 || resp.QuantityAfter != 22 {
		t.Fatalf("unexpected adjustment result %+v", resp)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/inventory/logs?product_id=prd-bread-white&from=2000-01-01", managerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	logs := decodeBody[domain.InventoryLogListResponse](t, rec)
	if logs.Pagination.Total != 1 || logs.Logs[0].QuantityChange != -3 {
		t.Fatalf("unexpected logs %+v", logs)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/inventory/logs?from=yesterday", managerToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestHandleSettings_OwnerOnlyUpdate(t *testing.T) {
	api := newTestAPI(t)
	managerToken := loginAs(t, api, "manager", "manager123")
	ownerToken := loginAs(t, api, "owner", "owner123")
	prefix := "pos"

	rec := do(t, api, http.MethodPut, "/api/v1/settings", managerToken, domain.SettingsUpdateRequest{InvoicePrefix: &prefix})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for manager, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPut, "/api/v1/settings", ownerToken, domain.SettingsUpdateRequest{InvoicePrefix: &prefix})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for owner, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody[map[string]domain.Settings](t, rec)
	if body["settings"].InvoicePrefix != "POS" {
		t.Fatalf("expected uppercased prefix, got %q", body["settings"].InvoicePrefix)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/audit-logs?action=settings_change", ownerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	audit := decodeBody[map[string][]domain.AuditLog](t, rec)
	if len(audit["logs"]) != 1 {
		t.Fatalf("expected one settings audit entry, got %d", len(audit["logs"]))
	}
}

func TestHandleCustomers_CreateAndGet(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := do(t, api, http.MethodPost, "/api/v1/customers", token, domain.CustomerCreateRequest{Name: "Ana", Phone: "+15550199"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]domain.Customer](t, rec)["customer"]

	rec = do(t, api, http.MethodGet, "/api/v1/customers/"+created.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/customers", token, domain.CustomerCreateRequest{Name: "Ana Again", Phone: "+15550199"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate phone, got %d", rec.Code)
	}
}

func TestHandleUsers_OwnerCreatesCashier(t *testing.T) {
	api := newTestAPI(t)
	ownerToken := loginAs(t, api, "owner", "owner123")

	rec := do(t, api, http.MethodPost, "/api/v1/users", ownerToken, domain.UserCreateRequest{
		Username: "latecashier",
		Name:     "Late Shift",
		Password: "night-shift",
		Role:     "cashier",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	if token := loginAs(t, api, "latecashier", "night-shift"); token == "" {
		t.Fatalf("expected new cashier to log in")
	}
}

func TestHandleProductActions_UpdateAndPriceHistory(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	managerToken := loginAs(t, api, "manager", "manager123")
	price := int64(950)

	rec := do(t, api, http.MethodPut, "/api/v1/products/prd-coffee-250", cashierToken, domain.ProductUpdateRequest{SellingPriceCents: &price})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPut, "/api/v1/products/prd-coffee-250", managerToken, domain.ProductUpdateRequest{SellingPriceCents: &price})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for manager, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	updated := decodeBody[map[string]domain.Product](t, rec)["product"]
	if updated.SellingPriceCents != 950 || updated.Stock != 40 {
		t.Fatalf("unexpected product after update %+v", updated)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/products/prd-coffee-250", cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeBody[map[string]domain.ProductSnapshot](t, rec)["product"]; got.SellingPriceCents != 950 {
		t.Fatalf("expected refreshed price, got %+v", got)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/products/prd-coffee-250/price-history", managerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	history := decodeBody[map[string][]domain.PriceChange](t, rec)["price_history"]
	if len(history) != 1 || history[0].OldSellingPriceCents != 899 || history[0].NewSellingPriceCents != 950 {
		t.Fatalf("unexpected price history %+v", history)
	}

	rec = do(t, api, http.MethodPut, "/api/v1/products/prd-missing", managerToken, domain.ProductUpdateRequest{SellingPriceCents: &price})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rec.Code)
	}
}

func TestHandleCatalog_DisplayPrice(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "cashier", "cashier123")

	rec := do(t, api, http.MethodGet, "/api/v1/catalog/barcode/8991234500055", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	// 159 less 5% (7.95 rounds to 8).
	if got := decodeBody[map[string]domain.ProductSnapshot](t, rec)["product"]; got.DisplayPriceCents != 151 {
		t.Fatalf("expected display price 151, got %+v", got)
	}
}

func TestHandleSuppliers_CreateListAndDeactivate(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	managerToken := loginAs(t, api, "manager", "manager123")

	rec := do(t, api, http.MethodGet, "/api/v1/suppliers", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/suppliers", managerToken, domain.SupplierCreateRequest{Name: "Acme Wholesale", Phone: "+15550300"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	created := decodeBody[map[string]domain.Supplier](t, rec)["supplier"]
	if !created.Active {
		t.Fatalf("expected new supplier active, got %+v", created)
	}

	rec = do(t, api, http.MethodPost, "/api/v1/suppliers", managerToken, domain.SupplierCreateRequest{Name: "No Phone"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without phone, got %d", rec.Code)
	}

	inactive := false
	rec = do(t, api, http.MethodPut, "/api/v1/suppliers/"+created.ID, managerToken, domain.SupplierUpdateRequest{Active: &inactive})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, api, http.MethodGet, "/api/v1/suppliers", managerToken, nil)
	if got := decodeBody[map[string][]domain.Supplier](t, rec)["suppliers"]; len(got) != 0 {
		t.Fatalf("expected deactivated supplier hidden, got %+v", got)
	}
	rec = do(t, api, http.MethodGet, "/api/v1/suppliers?include_inactive=true", managerToken, nil)
	if got := decodeBody[map[string][]domain.Supplier](t, rec)["suppliers"]; len(got) != 1 {
		t.Fatalf("expected one supplier including inactive, got %+v", got)
	}
}

func TestHandleSalesReport(t *testing.T) {
	api := newTestAPI(t)
	cashierToken := loginAs(t, api, "cashier", "cashier123")
	managerToken := loginAs(t, api, "manager", "manager123")

	rec := do(t, api, http.MethodPost, "/api/v1/sales", cashierToken, domain.CreateSaleRequest{
		Lines:    []domain.SaleLineRequest{{ProductID: "prd-coffee-250", Quantity: 2}},
		Payments: []domain.Payment{{Method: "cash", AmountCents: 2000}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = do(t, api, http.MethodGet, "/api/v1/reports/sales", cashierToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/reports/sales?from=2000-01-01", managerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	report := decodeBody[map[string]domain.SalesReport](t, rec)["report"]
	if report.Transactions != 1 || report.RevenueCents != 1978 || report.ProfitCents != 758 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(report.ByPayment) != 1 || report.ByPayment[0].AmountCents != 2000 {
		t.Fatalf("unexpected payment summary %+v", report.ByPayment)
	}

	rec = do(t, api, http.MethodGet, "/api/v1/reports/sales?from=2030-01-02&to=2030-01-01", managerToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted range, got %d", rec.Code)
	}
}
