// Package storefront содержит HTTP-клиент витрины: загрузку каталога, локальный расчёт корзины,
// оформление заказа и ожидание подтверждения оплаты.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
)

const (
	defaultPollAttempts = 5
	defaultPollInterval = 3 * time.Second
)

var (
	// ErrNoCatalog возвращается при локальном расчёте до загрузки каталога.
	ErrNoCatalog = errors.New("storefront: catalog is not loaded")

	errStillPending = errors.New("payment is still pending")
)

// APIError: ответ сервера с кодом, отличным от 200.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("storefront: server returned %d: %s", e.StatusCode, e.Message)
}

// Config содержит параметры клиента витрины.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger

	// PollAttempts и PollInterval ограничивают ожидание подтверждения оплаты.
	PollAttempts uint64
	PollInterval time.Duration
}

// Client обращается к API оформления заказов.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	catalogHTTP  *retryablehttp.Client
	logger       *zap.Logger
	pollAttempts uint64
	pollInterval time.Duration

	catalog atomic.Pointer[pricing.Rules]
}

// NewClient создаёт клиента витрины.
func NewClient(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = 2
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.Logger = nil

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:   httpClient,
		catalogHTTP:  rc,
		logger:       logger,
		pollAttempts: cfg.PollAttempts,
		pollInterval: cfg.PollInterval,
	}
	if c.pollAttempts == 0 {
		c.pollAttempts = defaultPollAttempts
	}
	if c.pollInterval <= 0 {
		c.pollInterval = defaultPollInterval
	}
	return c
}

// FetchCatalog загружает артефакт правил и сохраняет его для локального расчёта.
// Запрос идемпотентный и повторяется при сетевых ошибках и ответах 5xx.
func (c *Client) FetchCatalog(ctx context.Context) (*pricing.Rules, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/catalog", nil)
	if err != nil {
		return nil, fmt.Errorf("create catalog request: %w", err)
	}

	resp, err := c.catalogHTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	rules, err := pricing.DecodeCatalog(body)
	if err != nil {
		return nil, err
	}
	c.catalog.Store(rules)

	c.logger.Debug("catalog loaded", zap.String("version", rules.Version), zap.Int("products", len(rules.Products)))
	return rules, nil
}

// Price рассчитывает корзину локально по загруженному каталогу тем же кодом, что и сервер.
// Купоны в каталог не публикуются, поэтому для купона нужен Quote.
func (c *Client) Price(sel pricing.Selection) (pricing.Quote, error) {
	rules := c.catalog.Load()
	if rules == nil {
		return pricing.Quote{}, ErrNoCatalog
	}
	return pricing.Price(sel, "", rules)
}

type quoteRequest struct {
	pricing.Selection
	CouponCode string `json:"couponCode"`
}

// Quote запрашивает расчёт корзины у сервера, в том числе с купоном.
func (c *Client) Quote(ctx context.Context, sel pricing.Selection, couponCode string) (pricing.Quote, error) {
	var q pricing.Quote
	err := c.postJSON(ctx, "/api/cart/quote", quoteRequest{Selection: sel, CouponCode: couponCode}, &q)
	return q, err
}

type checkoutRequest struct {
	CartLines  []model.CartLine `json:"cartLines"`
	Totals     model.Totals     `json:"totals"`
	CouponCode string           `json:"couponCode,omitempty"`
	Customer   model.Customer   `json:"customer"`
}

// CheckoutResponse: ответ сервера на оформление заказа.
type CheckoutResponse struct {
	Success         bool         `json:"success"`
	OrderID         string       `json:"orderId"`
	OrderNumber     string       `json:"orderNumber"`
	ClientSecret    string       `json:"clientSecret,omitempty"`
	PaymentIntentID string       `json:"paymentIntentId,omitempty"`
	ApprovalURL     string       `json:"approvalUrl,omitempty"`
	PayPalOrderID   string       `json:"paypalOrderId,omitempty"`
	Totals          model.Totals `json:"totals"`
}

// Checkout отправляет рассчитанную корзину на оформление через указанную платёжную систему.
func (c *Client) Checkout(ctx context.Context, provider model.PaymentProvider, cart pricing.Cart, couponCode string, customer model.Customer) (*CheckoutResponse, error) {
	var resp CheckoutResponse
	err := c.postJSON(ctx, "/api/checkout/"+string(provider), checkoutRequest{
		CartLines:  cart.Lines,
		Totals:     cart.Totals,
		CouponCode: couponCode,
		Customer:   customer,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmResponse: статус заказа по данным сервера. Success означает, что статус получен; оплату показывает Status.
type ConfirmResponse struct {
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	OrderNumber string `json:"orderNumber"`
	OrderID     string `json:"orderId,omitempty"`
}

// Confirm запрашивает сверку статуса заказа.
func (c *Client) Confirm(ctx context.Context, orderID string) (*ConfirmResponse, error) {
	var resp ConfirmResponse
	if err := c.postJSON(ctx, "/api/checkout/confirm", map[string]string{"orderId": orderID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CapturePayPal списывает одобренный заказ PayPal после возврата покупателя.
func (c *Client) CapturePayPal(ctx context.Context, paypalOrderID string) (*ConfirmResponse, error) {
	var resp ConfirmResponse
	if err := c.postJSON(ctx, "/api/checkout/paypal/capture", map[string]string{"paypalOrderId": paypalOrderID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WaitForPayment опрашивает Confirm с постоянной паузой, пока статус pending.
// После исчерпания попыток возвращается последний известный статус без ошибки.
func (c *Client) WaitForPayment(ctx context.Context, orderID string) (*ConfirmResponse, error) {
	var last *ConfirmResponse

	b := retry.WithMaxRetries(c.pollAttempts-1, retry.NewConstant(c.pollInterval))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		resp, err := c.Confirm(ctx, orderID)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return err
			}
			return retry.RetryableError(err)
		}

		last = resp
		if resp.Status == string(model.OrderStatusPending) {
			return retry.RetryableError(errStillPending)
		}
		return nil
	})

	switch {
	case err == nil:
		return last, nil
	case errors.Is(err, errStillPending):
		c.logger.Info("payment still pending after polling", zap.String("order_id", orderID))
		return last, nil
	case last != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
		c.logger.Warn("payment confirmation failed, keeping last status", zap.String("order_id", orderID), zap.Error(err))
		return last, nil
	default:
		return last, err
	}
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
