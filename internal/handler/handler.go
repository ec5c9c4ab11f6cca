// Package handler содержит HTTP-обработчики API сервиса оформления заказов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/middleware"
	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/paymentmethod"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
	"github.com/mmeshcher/bundle-checkout/internal/service"
)

const (
	msgValidationFailed = "Payment validation failed. Please refresh and try again."
	msgPaymentFailed    = "Payment could not be processed. Please try again."
	msgBadRequest       = "Invalid request."
	msgNotFound         = "Order not found."
	msgUnavailable      = "Payment method is not available."
	msgInternal         = "Something went wrong. Please try again."
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Catalog() *pricing.Rules
	Quote(sel pricing.Selection, couponCode string) (pricing.Quote, error)
	Checkout(ctx context.Context, req service.CheckoutRequest) (*service.CheckoutResult, error)
	Confirm(ctx context.Context, orderID string) (*service.ConfirmResult, error)
	CapturePayPal(ctx context.Context, paypalOrderID string) (*service.ConfirmResult, error)
	OrderReceipt(ctx context.Context, orderID string) (*service.Receipt, error)
	PaymentMethods(country, currency string, amountCents *int64) service.PaymentOptions
	AllPaymentMethods() []paymentmethod.Method
	TogglePaymentMethod(id string, enabled bool) error
	ReloadRules() error
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service   Service
	logger    *zap.Logger
	adminAuth *middleware.AdminAuth
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, admin *middleware.AdminAuth) *Handler {
	return &Handler{
		service:   s,
		logger:    logger,
		adminAuth: admin,
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Success: false, Error: msg})
}

// writeServiceError переводит ошибку сервиса в ответ. Подробности остаются только в журнале.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, msgValidationFailed)
	case errors.Is(err, service.ErrInvalidCustomer):
		writeError(w, http.StatusBadRequest, msgBadRequest)
	case errors.Is(err, service.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, msgNotFound)
	case errors.Is(err, service.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, msgUnavailable)
	case errors.Is(err, service.ErrPaymentProvider):
		h.logger.Error(op+" provider error", zap.Error(err))
		writeError(w, http.StatusBadGateway, msgPaymentFailed)
	default:
		h.logger.Error(op+" error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

// Catalog возвращает текущий артефакт правил ценообразования без кодов купонов.
// Товары упорядочены по sort_order.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	rules := h.service.Catalog()
	resp := *rules
	resp.Products = rules.SortedProducts()
	writeJSON(w, http.StatusOK, &resp)
}

type quoteRequest struct {
	pricing.Selection
	CouponCode string `json:"couponCode"`
}

// Quote рассчитывает корзину по выбору покупателя.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	q, err := h.service.Quote(req.Selection, req.CouponCode)
	if err != nil {
		if errors.Is(err, pricing.ErrUnknownSKU) || errors.Is(err, pricing.ErrNotGiftEligible) {
			writeError(w, http.StatusBadRequest, msgBadRequest)
			return
		}
		h.writeServiceError(w, "quote", err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}

type checkoutRequest struct {
	CartLines  []model.CartLine `json:"cartLines"`
	Totals     model.Totals     `json:"totals"`
	CouponCode string           `json:"couponCode,omitempty"`
	Customer   model.Customer   `json:"customer"`
}

type checkoutResponse struct {
	Success         bool         `json:"success"`
	OrderID         string       `json:"orderId"`
	OrderNumber     string       `json:"orderNumber"`
	ClientSecret    string       `json:"clientSecret,omitempty"`
	PaymentIntentID string       `json:"paymentIntentId,omitempty"`
	ApprovalURL     string       `json:"approvalUrl,omitempty"`
	PayPalOrderID   string       `json:"paypalOrderId,omitempty"`
	Totals          model.Totals `json:"totals"`
}

// CheckoutStripe создаёт заказ и PaymentIntent.
func (h *Handler) CheckoutStripe(w http.ResponseWriter, r *http.Request) {
	h.checkout(w, r, model.ProviderStripe)
}

// CheckoutPayPal создаёт заказ и заказ PayPal для одобрения покупателем.
func (h *Handler) CheckoutPayPal(w http.ResponseWriter, r *http.Request) {
	h.checkout(w, r, model.ProviderPayPal)
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request, provider model.PaymentProvider) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := h.service.Checkout(r.Context(), service.CheckoutRequest{
		Provider:   provider,
		Lines:      req.CartLines,
		Totals:     req.Totals,
		CouponCode: req.CouponCode,
		Customer:   req.Customer,
	})
	if err != nil {
		h.writeServiceError(w, "checkout", err)
		return
	}

	resp := checkoutResponse{
		Success:     true,
		OrderID:     res.OrderID,
		OrderNumber: res.OrderNumber,
		Totals:      res.Totals,
	}
	switch provider {
	case model.ProviderStripe:
		resp.ClientSecret = res.ClientSecret
		resp.PaymentIntentID = res.TransactionID
	case model.ProviderPayPal:
		resp.ApprovalURL = res.ApprovalURL
		resp.PayPalOrderID = res.TransactionID
	}

	writeJSON(w, http.StatusOK, resp)
}

type confirmRequest struct {
	OrderID string `json:"orderId"`
}

// confirmResponse: success=true означает, что статус заказа получен, а не что заказ оплачен.
// Оплату показывает поле status.
type confirmResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	OrderNumber string `json:"orderNumber"`
	OrderID     string `json:"orderId,omitempty"`
}

// Confirm сверяет статус заказа с платёжной системой.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.OrderID) == "" {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := h.service.Confirm(r.Context(), req.OrderID)
	if err != nil {
		h.writeServiceError(w, "confirm", err)
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{
		Success:     true,
		Status:      string(res.Status),
		OrderNumber: res.OrderNumber,
	})
}

type captureRequest struct {
	PayPalOrderID string `json:"paypalOrderId"`
}

// CapturePayPal списывает одобренный заказ PayPal.
func (h *Handler) CapturePayPal(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.PayPalOrderID) == "" {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := h.service.CapturePayPal(r.Context(), req.PayPalOrderID)
	if err != nil {
		h.writeServiceError(w, "capture", err)
		return
	}

	writeJSON(w, http.StatusOK, confirmResponse{
		Success:     true,
		Status:      string(res.Status),
		OrderNumber: res.OrderNumber,
		OrderID:     res.OrderID,
	})
}

type receiptItem struct {
	SKU      string  `json:"sku"`
	Title    string  `json:"title"`
	Price    float64 `json:"price"`
	Discount float64 `json:"discount"`
	IsGift   bool    `json:"isGift"`
	IsOTO    bool    `json:"isOTO,omitempty"`
}

type receiptResponse struct {
	OrderID     string        `json:"orderId"`
	OrderNumber string        `json:"orderNumber"`
	Status      string        `json:"status"`
	Provider    string        `json:"provider"`
	CouponCode  string        `json:"couponCode,omitempty"`
	Totals      model.Totals  `json:"totals"`
	Items       []receiptItem `json:"items"`
	CreatedAt   string        `json:"createdAt"`
}

// OrderReceipt возвращает состав и суммы заказа для страницы подтверждения.
// Данные покупателя в ответ не попадают.
func (h *Handler) OrderReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.service.OrderReceipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, "order receipt", err)
		return
	}

	o := receipt.Order
	resp := receiptResponse{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Status:      string(o.Status),
		Provider:    string(o.Provider),
		CouponCode:  o.CouponCode,
		Totals: model.Totals{
			Subtotal:       pricing.FromCents(o.SubtotalCents),
			Discount:       pricing.FromCents(o.DiscountCents),
			CouponDiscount: pricing.FromCents(o.CouponDiscountCents),
			Total:          pricing.FromCents(o.TotalCents),
		},
		Items:     make([]receiptItem, 0, len(receipt.Items)),
		CreatedAt: o.CreatedAt.Format(time.RFC3339),
	}
	for _, it := range receipt.Items {
		resp.Items = append(resp.Items, receiptItem{
			SKU:      it.SKU,
			Title:    it.Title,
			Price:    pricing.FromCents(it.PriceCents),
			Discount: pricing.FromCents(it.DiscountCents),
			IsGift:   it.IsGift,
			IsOTO:    it.IsOTO,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// PaymentMethods возвращает доступные способы оплаты для страны, валюты и суммы.
func (h *Handler) PaymentMethods(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var amount *int64
	if raw := q.Get("amount"); raw != "" {
		cents, err := pricing.ParseAmount(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, msgBadRequest)
			return
		}
		amount = &cents
	}

	methods := h.service.PaymentMethods(q.Get("country"), strings.ToLower(q.Get("currency")), amount)
	writeJSON(w, http.StatusOK, methods)
}

type adminLoginRequest struct {
	Secret string `json:"secret"`
}

// AdminLogin проверяет секрет администратора и выдаёт cookie сессии.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	if !h.adminAuth.Enabled() {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return
	}

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !h.adminAuth.CheckSecret(req.Secret) {
		h.logger.Warn("admin login rejected", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.adminAuth.SetSessionCookie(w)
	w.WriteHeader(http.StatusOK)
}

// AdminPaymentMethods возвращает полный список способов оплаты с признаком включения.
func (h *Handler) AdminPaymentMethods(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.AllPaymentMethods())
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// TogglePaymentMethod включает или выключает способ оплаты.
func (h *Handler) TogglePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.service.TogglePaymentMethod(id, *req.Enabled); err != nil {
		if errors.Is(err, paymentmethod.ErrUnknownMethod) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("toggle payment method error", zap.Error(err), zap.String("method", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type reloadResponse struct {
	Version string `json:"version"`
}

// ReloadRules перечитывает файл правил ценообразования.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ReloadRules(); err != nil {
		if errors.Is(err, pricing.ErrInvalidRules) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, reloadResponse{Version: h.service.Catalog().Version})
}

// Health отвечает 200, пока процесс обслуживает запросы.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}
