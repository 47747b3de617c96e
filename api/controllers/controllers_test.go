package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/digistore-backend/internal/abandoned"
	"github.com/angelmondragon/digistore-backend/internal/access"
	cartsvc "github.com/angelmondragon/digistore-backend/internal/cart"
	"github.com/angelmondragon/digistore-backend/internal/checkout"
	"github.com/angelmondragon/digistore-backend/internal/discounts"
	"github.com/angelmondragon/digistore-backend/internal/downloads"
	"github.com/angelmondragon/digistore-backend/internal/pages"
	"github.com/angelmondragon/digistore-backend/internal/users"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/storage/gcs"
)

func withActor(req *http.Request, userID uuid.UUID, role enums.Role) *http.Request {
	return req.WithContext(access.WithActor(req.Context(), &access.Actor{UserID: userID, Role: role}))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

type stubCart struct {
	cartsvc.Service
	added   []cartsvc.ItemInput
	code    string
	cleared bool
}

func (s *stubCart) AddItem(_ context.Context, userID uuid.UUID, item cartsvc.ItemInput) (*cartsvc.Summary, error) {
	s.added = append(s.added, item)
	return &cartsvc.Summary{UserID: userID, Subtotal: decimal.NewFromInt(49), Total: decimal.NewFromInt(49)}, nil
}

func (s *stubCart) Summary(_ context.Context, userID uuid.UUID, code string) (*cartsvc.Summary, error) {
	s.code = code
	return &cartsvc.Summary{UserID: userID}, nil
}

func (s *stubCart) Clear(context.Context, uuid.UUID) error {
	s.cleared = true
	return nil
}

func TestCartRequiresSignedInUser(t *testing.T) {
	svc := &stubCart{}
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(svc.added) != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestCartAddItemDecodesBody(t *testing.T) {
	svc := &stubCart{}
	productID := uuid.New()
	body := `{"productId":"` + productID.String() + `","quantity":2}`
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(body)), uuid.New(), enums.RoleCustomer)
	rec := httptest.NewRecorder()
	CartAddItem(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.added) != 1 || svc.added[0].ProductID != productID || svc.added[0].Quantity != 2 {
		t.Fatalf("unexpected item %+v", svc.added)
	}

	rec = httptest.NewRecorder()
	req = withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(`{"productId":"`+productID.String()+`","quantity":0}`)), uuid.New(), enums.RoleCustomer)
	CartAddItem(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero quantity, got %d", rec.Code)
	}
}

func TestCartSummaryAcceptsEmptyBody(t *testing.T) {
	svc := &stubCart{}
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cart/summary", nil), uuid.New(), enums.RoleCustomer)
	rec := httptest.NewRecorder()
	CartSummary(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.code != "" {
		t.Fatalf("expected no code, got %q", svc.code)
	}

	req = withActor(httptest.NewRequest(http.MethodPost, "/api/v1/cart/summary", strings.NewReader(`{"code":"SAVE10"}`)), uuid.New(), enums.RoleCustomer)
	rec = httptest.NewRecorder()
	CartSummary(svc, nil).ServeHTTP(rec, req)
	if svc.code != "SAVE10" {
		t.Fatalf("expected code forwarded, got %q", svc.code)
	}
}

func TestCartClearWritesAcknowledgement(t *testing.T) {
	svc := &stubCart{}
	req := withActor(httptest.NewRequest(http.MethodDelete, "/api/v1/cart", nil), uuid.New(), enums.RoleCustomer)
	rec := httptest.NewRecorder()
	CartClear(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !svc.cleared {
		t.Fatalf("expected cleared cart, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["success"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

type stubDiscounts struct {
	discounts.Service
	result    *discounts.Result
	rejection *discounts.Rejection
	err       error
}

func (s *stubDiscounts) Check(context.Context, string, decimal.Decimal, []discounts.LineItem) (*discounts.Result, *discounts.Rejection, error) {
	return s.result, s.rejection, s.err
}

func TestValidateDiscountRejectionCarriesReason(t *testing.T) {
	svc := &stubDiscounts{rejection: &discounts.Rejection{Reason: discounts.ReasonExpired, Message: "this code has expired"}}
	rec := httptest.NewRecorder()
	ValidateDiscount(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(`{"code":"OLD","cartTotal":"20"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] != "this code has expired" {
		t.Fatalf("unexpected message %v", body["error"])
	}
	details, _ := body["details"].(map[string]any)
	if details["reason"] != string(discounts.ReasonExpired) {
		t.Fatalf("unexpected details %v", body["details"])
	}
}

func TestValidateDiscountSuccess(t *testing.T) {
	svc := &stubDiscounts{result: &discounts.Result{
		Code:           "SAVE10",
		Type:           enums.DiscountTypePercentage,
		Value:          decimal.NewFromInt(10),
		DiscountAmount: decimal.NewFromInt(2),
	}}
	rec := httptest.NewRecorder()
	ValidateDiscount(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(`{"code":"SAVE10","cartTotal":"20"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	discount, _ := body["discount"].(map[string]any)
	if body["success"] != true || discount["code"] != "SAVE10" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestValidateDiscountRejectsNegativeTotal(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidateDiscount(&stubDiscounts{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/discounts/validate", strings.NewReader(`{"code":"X","cartTotal":"-1"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

type stubSweeper struct {
	calls int
}

func (s *stubSweeper) Sweep(context.Context) (*abandoned.SweepResult, error) {
	s.calls++
	return &abandoned.SweepResult{Scanned: 3, Emailed: 2, Skipped: 1}, nil
}

func TestAbandonedCartSweepSecret(t *testing.T) {
	cases := []struct {
		name   string
		secret string
		header string
		status int
		calls  int
	}{
		{name: "disabled", secret: "", header: "Bearer anything", status: http.StatusForbidden},
		{name: "missing", secret: "s3cret", status: http.StatusUnauthorized},
		{name: "wrong", secret: "s3cret", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "ok", secret: "s3cret", header: "bearer s3cret", status: http.StatusOK, calls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sweeper := &stubSweeper{}
			req := httptest.NewRequest(http.MethodPost, "/api/cron/abandoned-carts", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			AbandonedCartSweep(sweeper, tc.secret, nil).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if sweeper.calls != tc.calls {
				t.Fatalf("expected %d sweeps, got %d", tc.calls, sweeper.calls)
			}
		})
	}
}

type stubPurchases struct {
	owned bool
}

func (s stubPurchases) HasCompletedPurchase(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.owned, nil
}

type stubProductFiles struct {
	product *models.Product
	files   []models.ProductFile
}

func (s stubProductFiles) FindByID(context.Context, uuid.UUID) (*models.Product, error) {
	return s.product, nil
}

func (s stubProductFiles) ListFiles(context.Context, uuid.UUID) ([]models.ProductFile, error) {
	return s.files, nil
}

type stubObjects map[string]string

func (s stubObjects) Open(_ context.Context, key string) (*gcs.Object, error) {
	body, ok := s[key]
	if !ok {
		return nil, gcs.ErrObjectNotFound
	}
	return &gcs.Object{Body: io.NopCloser(strings.NewReader(body)), ContentType: "text/plain", Size: int64(len(body))}, nil
}

func newDownloadService(t *testing.T, owned bool) (*downloads.Service, uuid.UUID) {
	t.Helper()
	productID := uuid.New()
	files := stubProductFiles{
		product: &models.Product{ID: productID, Slug: "starter-kit"},
		files:   []models.ProductFile{{ProductID: productID, FileName: "guide.txt", ObjectKey: "products/guide.txt", ContentType: "text/plain"}},
	}
	svc, err := downloads.NewService(stubPurchases{owned: owned}, files, stubObjects{"products/guide.txt": "hello"}, nil)
	if err != nil {
		t.Fatalf("download service: %v", err)
	}
	return svc, productID
}

func TestDownloadStreamsPurchasedFile(t *testing.T) {
	svc, productID := newDownloadService(t, true)
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/downloads/"+productID.String(), nil), "productId", productID.String())
	req = withActor(req, uuid.New(), enums.RoleCustomer)
	rec := httptest.NewRecorder()
	Download(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=guide.txt" {
		t.Fatalf("unexpected disposition %q", got)
	}
	if got := rec.Header().Get("Content-Length"); got != "5" {
		t.Fatalf("unexpected length %q", got)
	}
	if rec.Body.String() != "hello" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestDownloadRejectsNonBuyer(t *testing.T) {
	svc, productID := newDownloadService(t, false)
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/downloads/"+productID.String(), nil), "productId", productID.String())
	req = withActor(req, uuid.New(), enums.RoleCustomer)
	rec := httptest.NewRecorder()
	Download(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/downloads/nope", nil), "productId", "nope")
	rec = httptest.NewRecorder()
	Download(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d", rec.Code)
	}
}

type stubCheckout struct {
	buyer   *checkout.Buyer
	items   []checkout.ItemInput
	code    string
	confirm *models.Transaction
}

func (s *stubCheckout) CreateSession(_ context.Context, buyer *checkout.Buyer, items []checkout.ItemInput, code string) (*checkout.SessionResult, error) {
	s.buyer, s.items, s.code = buyer, items, code
	return &checkout.SessionResult{SessionID: "cs_test", URL: "https://checkout.stripe.com/c/cs_test"}, nil
}

func (s *stubCheckout) ConfirmSuccess(_ context.Context, sessionID string) (*models.Transaction, error) {
	if s.confirm == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "session not found")
	}
	return s.confirm, nil
}

type stubBuyers struct {
	user *users.UserDTO
}

func (s stubBuyers) Me(context.Context, uuid.UUID) (*users.UserDTO, error) {
	if s.user == nil {
		return nil, errors.New("lookup failed")
	}
	return s.user, nil
}

func TestCheckoutSessionGuestAndSignedIn(t *testing.T) {
	body := `{"items":[{"productId":"` + uuid.NewString() + `","quantity":1}],"discountCode":"SAVE10"}`

	svc := &stubCheckout{}
	rec := httptest.NewRecorder()
	CheckoutSession(svc, stubBuyers{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.buyer != nil || svc.code != "SAVE10" || len(svc.items) != 1 {
		t.Fatalf("unexpected guest call buyer=%v code=%q items=%d", svc.buyer, svc.code, len(svc.items))
	}

	handle := "octocat"
	userID := uuid.New()
	buyers := stubBuyers{user: &users.UserDTO{ID: userID, Email: "buyer@example.com", GitHubUsername: &handle}}
	svc = &stubCheckout{}
	req := withActor(httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(body)), userID, enums.RoleCustomer)
	rec = httptest.NewRecorder()
	CheckoutSession(svc, buyers, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.buyer == nil || svc.buyer.UserID != userID || svc.buyer.Email != "buyer@example.com" || svc.buyer.GitHubUsername != "octocat" {
		t.Fatalf("unexpected buyer %+v", svc.buyer)
	}
}

func TestCheckoutSessionRequiresItems(t *testing.T) {
	rec := httptest.NewRecorder()
	CheckoutSession(&stubCheckout{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/session", strings.NewReader(`{"items":[]}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckoutSuccessSummarizesTransaction(t *testing.T) {
	svc := &stubCheckout{confirm: &models.Transaction{
		ID:          uuid.New(),
		OrderNumber: "DS-1001",
		Status:      enums.TransactionStatusPending,
		Amount:      decimal.RequireFromString("44.1"),
		Currency:    "usd",
		BuyerEmail:  "buyer@example.com",
	}}

	rec := httptest.NewRecorder()
	CheckoutSuccess(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/success", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without session_id, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	CheckoutSuccess(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/success?session_id=cs_test", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	data, _ := decodeBody(t, rec)["data"].(map[string]any)
	if data["amount"] != "44.10" || data["orderNumber"] != "DS-1001" {
		t.Fatalf("unexpected summary %v", data)
	}
}

type stubPageRenderer struct {
	err error
}

func (s stubPageRenderer) Render(_ context.Context, w io.Writer, page *models.Page) error {
	if s.err != nil {
		return s.err
	}
	_, err := io.WriteString(w, "<h1>"+page.Title+"</h1>")
	return err
}

type stubPages struct {
	pages.Service
	page *models.Page
}

func (s stubPages) GetBySlug(_ context.Context, _ *access.Actor, slug string) (*models.Page, error) {
	if s.page == nil || s.page.Slug != slug {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "page not found")
	}
	return s.page, nil
}

func TestRenderPage(t *testing.T) {
	svc := stubPages{page: &models.Page{Slug: "about", Title: "About"}}

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/pages/about", nil), "slug", "about")
	rec := httptest.NewRecorder()
	RenderPage(svc, stubPageRenderer{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html") || rec.Body.String() != "<h1>About</h1>" {
		t.Fatalf("unexpected response %q %q", rec.Header().Get("Content-Type"), rec.Body.String())
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/pages/missing", nil), "slug", "missing")
	rec = httptest.NewRecorder()
	RenderPage(svc, stubPageRenderer{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	req = withURLParam(httptest.NewRequest(http.MethodGet, "/pages/about", nil), "slug", "about")
	rec = httptest.NewRecorder()
	RenderPage(svc, stubPageRenderer{err: errors.New("template broke")}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError || bytes.Contains(rec.Body.Bytes(), []byte("<h1>")) {
		t.Fatalf("expected clean 500, got %d %q", rec.Code, rec.Body.String())
	}
}
