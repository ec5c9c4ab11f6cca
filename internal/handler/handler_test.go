package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/middleware"
	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/payment"
	"github.com/mmeshcher/bundle-checkout/internal/paymentmethod"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
	"github.com/mmeshcher/bundle-checkout/internal/service"
	"github.com/mmeshcher/bundle-checkout/internal/validation"
)

type stubService struct {
	rules *pricing.Rules

	checkoutReq  service.CheckoutRequest
	checkoutResp *service.CheckoutResult
	checkoutErr  error

	confirmResp *service.ConfirmResult
	confirmErr  error

	receipt    *service.Receipt
	receiptErr error

	methods       service.PaymentOptions
	methodsAmount *int64

	toggledID string
	toggleErr error
	reloaded  bool
}

func (s *stubService) Catalog() *pricing.Rules { return s.rules }

func (s *stubService) Quote(sel pricing.Selection, couponCode string) (pricing.Quote, error) {
	return pricing.Price(sel, couponCode, s.rules)
}

func (s *stubService) Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	s.checkoutReq = req
	return s.checkoutResp, s.checkoutErr
}

func (s *stubService) Confirm(ctx context.Context, orderID string) (*service.ConfirmResult, error) {
	return s.confirmResp, s.confirmErr
}

func (s *stubService) CapturePayPal(ctx context.Context, paypalOrderID string) (*service.ConfirmResult, error) {
	return s.confirmResp, s.confirmErr
}

func (s *stubService) OrderReceipt(ctx context.Context, orderID string) (*service.Receipt, error) {
	return s.receipt, s.receiptErr
}

func (s *stubService) PaymentMethods(country, currency string, amountCents *int64) service.PaymentOptions {
	s.methodsAmount = amountCents
	return s.methods
}

func (s *stubService) AllPaymentMethods() []paymentmethod.Method {
	return paymentmethod.DefaultMethods()
}

func (s *stubService) TogglePaymentMethod(id string, enabled bool) error {
	s.toggledID = id
	return s.toggleErr
}

func (s *stubService) ReloadRules() error {
	s.reloaded = true
	return nil
}

func newTestHandler(t *testing.T, svc *stubService) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	rules, err := pricing.DefaultRules()
	if err != nil {
		t.Fatalf("default rules: %v", err)
	}
	svc.rules = rules

	return NewHandler(svc, logger, middleware.NewAdminAuth("admin-secret"))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()

	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestCatalog_HidesCoupons(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := doJSON(t, h.SetupRouter(), http.MethodGet, "/api/catalog", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), "LILAROSE10") {
		t.Fatalf("catalog must not publish coupon codes")
	}
	if !strings.Contains(rec.Body.String(), `"products"`) {
		t.Fatalf("catalog without products: %s", rec.Body.String())
	}
}

func TestQuote(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/cart/quote", map[string]any{
		"skus":       []string{"COURSE_AVOIDANT_MAN", "COURSE_SECURE_MARRIAGE"},
		"couponCode": "lilarose10",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var q pricing.Quote
	if err := json.NewDecoder(rec.Body).Decode(&q); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if q.QualifyingCount != 2 || !q.Coupon.Valid || len(q.Lines) != 2 {
		t.Fatalf("unexpected quote: %+v", q)
	}
}

func TestQuote_UnknownSKU(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/cart/quote", map[string]any{
		"skus": []string{"NOPE"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCheckout_Responses(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		result     *service.CheckoutResult
		err        error
		wantStatus int
		wantError  string
		wantField  string
	}{
		{
			name:       "stripe success",
			path:       "/api/checkout/stripe",
			result:     &service.CheckoutResult{OrderID: "o1", OrderNumber: "Jane Doe - #771234", TransactionID: "pi_1", ClientSecret: "pi_1_secret"},
			wantStatus: http.StatusOK,
			wantField:  `"paymentIntentId":"pi_1"`,
		},
		{
			name:       "paypal success",
			path:       "/api/checkout/paypal",
			result:     &service.CheckoutResult{OrderID: "o1", OrderNumber: "ORD-1-ABC", TransactionID: "PP1", ApprovalURL: "https://paypal.example/approve"},
			wantStatus: http.StatusOK,
			wantField:  `"paypalOrderId":"PP1"`,
		},
		{
			name:       "validation failure hides kind",
			path:       "/api/checkout/stripe",
			err:        fmt.Errorf("%w: %w", service.ErrValidation, validation.KindPriceTampering),
			wantStatus: http.StatusBadRequest,
			wantError:  msgValidationFailed,
		},
		{
			name:       "provider failure",
			path:       "/api/checkout/stripe",
			err:        fmt.Errorf("%w: stripe: card declined", payment.ErrPaymentProvider),
			wantStatus: http.StatusBadGateway,
			wantError:  msgPaymentFailed,
		},
		{
			name:       "invalid customer",
			path:       "/api/checkout/paypal",
			err:        service.ErrInvalidCustomer,
			wantStatus: http.StatusBadRequest,
			wantError:  msgBadRequest,
		},
		{
			name:       "provider unavailable",
			path:       "/api/checkout/paypal",
			err:        service.ErrProviderUnavailable,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  msgUnavailable,
		},
		{
			name:       "unexpected error",
			path:       "/api/checkout/stripe",
			err:        context.DeadlineExceeded,
			wantStatus: http.StatusInternalServerError,
			wantError:  msgInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{checkoutResp: tt.result, checkoutErr: tt.err}
			h := newTestHandler(t, svc)

			rec := doJSON(t, h.SetupRouter(), http.MethodPost, tt.path, checkoutRequest{
				CartLines: []model.CartLine{{SKU: "COURSE_AVOIDANT_MAN"}},
				Customer:  model.Customer{Email: "jane@example.com", FirstName: "Jane", LastName: "Doe"},
			})

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				resp := decodeError(t, rec)
				if resp.Success || resp.Error != tt.wantError {
					t.Fatalf("error response = %+v, want %q", resp, tt.wantError)
				}
				return
			}
			if !strings.Contains(rec.Body.String(), tt.wantField) {
				t.Fatalf("body %s does not contain %s", rec.Body.String(), tt.wantField)
			}
			if svc.checkoutReq.Customer.Email != "jane@example.com" {
				t.Fatalf("customer not passed to service: %+v", svc.checkoutReq.Customer)
			}
		})
	}
}

func TestCheckout_MalformedBody(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/checkout/stripe", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		resp       *service.ConfirmResult
		err        error
		wantStatus int
		wantOrder  string
	}{
		{
			name:       "paid",
			body:       confirmRequest{OrderID: "o1"},
			resp:       &service.ConfirmResult{OrderID: "o1", OrderNumber: "n1", Status: model.OrderStatusPaid},
			wantStatus: http.StatusOK,
			wantOrder:  "paid",
		},
		{
			name:       "failed payment is still a resolved status",
			body:       confirmRequest{OrderID: "o1"},
			resp:       &service.ConfirmResult{OrderID: "o1", OrderNumber: "n1", Status: model.OrderStatusFailed},
			wantStatus: http.StatusOK,
			wantOrder:  "failed",
		},
		{
			name:       "missing order id",
			body:       confirmRequest{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "not found",
			body:       confirmRequest{OrderID: "o1"},
			err:        service.ErrOrderNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "provider error",
			body:       confirmRequest{OrderID: "o1"},
			err:        payment.ErrPaymentProvider,
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubService{confirmResp: tt.resp, confirmErr: tt.err})

			rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/checkout/confirm", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantOrder == "" {
				return
			}

			var resp confirmResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !resp.Success || resp.Status != tt.wantOrder || resp.OrderNumber != "n1" {
				t.Fatalf("unexpected response: %+v", resp)
			}
		})
	}
}

func TestCapturePayPal(t *testing.T) {
	h := newTestHandler(t, &stubService{
		confirmResp: &service.ConfirmResult{OrderID: "o1", OrderNumber: "ORD-1-ABC", Status: model.OrderStatusPaid},
	})

	rec := doJSON(t, h.SetupRouter(), http.MethodPost, "/api/checkout/paypal/capture", captureRequest{PayPalOrderID: "PP1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp confirmResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.OrderID != "o1" || resp.Status != "paid" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestPaymentMethods_ParsesAmount(t *testing.T) {
	svc := &stubService{methods: service.PaymentOptions{Methods: []paymentmethod.Method{{ID: "card"}}, StripeOrder: []string{"card"}}}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodGet, "/api/payment-methods?country=US&amount=1325.52", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.methodsAmount == nil || *svc.methodsAmount != 132552 {
		t.Fatalf("amount = %v, want 132552", svc.methodsAmount)
	}

	rec = doJSON(t, h.SetupRouter(), http.MethodGet, "/api/payment-methods?amount=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAdmin_RequiresSession(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	rec := doJSON(t, router, http.MethodPost, "/api/admin/pricing/reload", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without session = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/admin/login", adminLoginRequest{Secret: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status with wrong secret = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/admin/login", adminLoginRequest{Secret: "admin-secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d", rec.Code, http.StatusOK)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("login did not set a session cookie")
	}

	rec = doJSON(t, router, http.MethodPost, "/api/admin/pricing/reload", nil, cookies[0])
	if rec.Code != http.StatusOK || !svc.reloaded {
		t.Fatalf("reload status = %d, reloaded = %v", rec.Code, svc.reloaded)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/admin/payment-methods", nil, cookies[0])
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"amazon_pay"`) {
		t.Fatalf("list status = %d, body = %s", rec.Code, rec.Body.String())
	}

	enabled := false
	rec = doJSON(t, router, http.MethodPost, "/api/admin/payment-methods/paypal", toggleRequest{Enabled: &enabled}, cookies[0])
	if rec.Code != http.StatusOK || svc.toggledID != "paypal" {
		t.Fatalf("toggle status = %d, id = %q", rec.Code, svc.toggledID)
	}

	svc.toggleErr = paymentmethod.ErrUnknownMethod
	rec = doJSON(t, router, http.MethodPost, "/api/admin/payment-methods/nope", toggleRequest{Enabled: &enabled}, cookies[0])
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown method status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestOrderReceipt(t *testing.T) {
	svc := &stubService{
		receipt: &service.Receipt{
			Order: &model.Order{
				ID:            "o1",
				Number:        "Jane Doe - #771234",
				Status:        model.OrderStatusPaid,
				Provider:      model.ProviderStripe,
				SubtotalCents: 184100,
				TotalCents:    132552,
				Customer:      model.Customer{Email: "jane@example.com"},
			},
			Items: []model.OrderItem{{SKU: "CONVERSATION_CARDS", PriceCents: 4700, DiscountCents: 4700, IsGift: true}},
		},
	}
	h := newTestHandler(t, svc)

	rec := doJSON(t, h.SetupRouter(), http.MethodGet, "/api/orders/o1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if strings.Contains(rec.Body.String(), "jane@example.com") {
		t.Fatalf("receipt must not expose customer data")
	}

	var resp receiptResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Totals.Total != 1325.52 || len(resp.Items) != 1 || !resp.Items[0].IsGift {
		t.Fatalf("unexpected receipt: %+v", resp)
	}

	svc.receiptErr = service.ErrOrderNotFound
	rec = doJSON(t, h.SetupRouter(), http.MethodGet, "/api/orders/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
