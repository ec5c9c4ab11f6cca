package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
)

// DefaultPayPalBaseURL: боевой адрес REST API PayPal.
const DefaultPayPalBaseURL = "https://api-m.paypal.com"

// PayPalConfig настраивает клиента PayPal.
type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// ReturnURL и CancelURL: адреса возврата покупателя после одобрения или отмены.
	ReturnURL string
	CancelURL string
	BrandName string

	Logger   *zap.Logger
	RetryMax int
}

// PayPal работает с Orders API v2: создание заказа, одобрение покупателем, списание.
type PayPal struct {
	baseURL      string
	clientID     string
	clientSecret string
	returnURL    string
	cancelURL    string
	brandName    string
	httpClient   *retryablehttp.Client
	logger       *zap.Logger

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

// NewPayPal создаёт клиента PayPal. Запросы повторяются при сетевых ошибках и ответах 5xx.
func NewPayPal(cfg PayPalConfig) (*PayPal, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("paypal: client credentials are required")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultPayPalBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	if rc.RetryMax == 0 {
		rc.RetryMax = 3
	}
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = retryLogger{logger.Sugar()}

	brand := cfg.BrandName
	if brand == "" {
		brand = "Bundle Builder"
	}

	return &PayPal{
		baseURL:      base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		returnURL:    cfg.ReturnURL,
		cancelURL:    cfg.CancelURL,
		brandName:    brand,
		httpClient:   rc,
		logger:       logger,
	}, nil
}

// Name возвращает идентификатор провайдера.
func (p *PayPal) Name() model.PaymentProvider {
	return model.ProviderPayPal
}

type paypalMoney struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalItem struct {
	Name       string      `json:"name"`
	Quantity   string      `json:"quantity"`
	UnitAmount paypalMoney `json:"unit_amount"`
	SKU        string      `json:"sku,omitempty"`
}

type paypalBreakdown struct {
	ItemTotal paypalMoney  `json:"item_total"`
	Discount  *paypalMoney `json:"discount,omitempty"`
}

type paypalAmount struct {
	paypalMoney
	Breakdown *paypalBreakdown `json:"breakdown,omitempty"`
}

type paypalPurchaseUnit struct {
	ReferenceID string       `json:"reference_id"`
	Description string       `json:"description,omitempty"`
	CustomID    string       `json:"custom_id,omitempty"`
	Amount      paypalAmount `json:"amount"`
	Items       []paypalItem `json:"items,omitempty"`
}

type paypalApplicationContext struct {
	BrandName  string `json:"brand_name,omitempty"`
	UserAction string `json:"user_action"`
	ReturnURL  string `json:"return_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

type paypalCreateOrder struct {
	Intent             string                   `json:"intent"`
	PurchaseUnits      []paypalPurchaseUnit     `json:"purchase_units"`
	ApplicationContext paypalApplicationContext `json:"application_context"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalCapture struct {
	ID                        string `json:"id"`
	Status                    string `json:"status"`
	SellerReceivableBreakdown *struct {
		PayPalFee *paypalMoney `json:"paypal_fee"`
	} `json:"seller_receivable_breakdown"`
}

// paypalOrder: общая часть ответов на создание, получение и списание заказа.
type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateTransaction создаёт заказ PayPal с разбивкой по позициям.
// Позиции передаются по цене каталога, разница с проверенной суммой уходит в скидку.
func (p *PayPal) CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error) {
	currency := strings.ToUpper(req.Currency)

	items := make([]paypalItem, 0, len(req.Lines))
	var itemTotal int64
	for _, l := range req.Lines {
		if l.IsGift {
			continue
		}
		cents := pricing.ToCents(l.MSRP)
		itemTotal += cents
		items = append(items, paypalItem{
			Name:       truncate(l.Title, 127),
			Quantity:   "1",
			UnitAmount: paypalMoney{CurrencyCode: currency, Value: pricing.FormatCents(cents)},
			SKU:        l.SKU,
		})
	}

	discount := max(0, itemTotal-req.AmountCents)
	breakdown := &paypalBreakdown{
		ItemTotal: paypalMoney{CurrencyCode: currency, Value: pricing.FormatCents(itemTotal)},
	}
	if discount > 0 {
		breakdown.Discount = &paypalMoney{CurrencyCode: currency, Value: pricing.FormatCents(discount)}
	}

	body := paypalCreateOrder{
		Intent: "CAPTURE",
		PurchaseUnits: []paypalPurchaseUnit{{
			ReferenceID: req.OrderID,
			Description: truncate(req.Description, 127),
			CustomID:    truncate(req.OrderNumber, 127),
			Amount: paypalAmount{
				paypalMoney: paypalMoney{CurrencyCode: currency, Value: pricing.FormatCents(itemTotal - discount)},
				Breakdown:   breakdown,
			},
			Items: items,
		}},
		ApplicationContext: paypalApplicationContext{
			BrandName:  p.brandName,
			UserAction: "PAY_NOW",
			ReturnURL:  p.returnURL,
			CancelURL:  p.cancelURL,
		},
	}

	var order paypalOrder
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders", "order-"+req.OrderID, body, &order); err != nil {
		return Transaction{}, fmt.Errorf("%w: paypal: create order: %v", ErrPaymentProvider, err)
	}

	approval := ""
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			approval = l.Href
			break
		}
	}
	if approval == "" {
		return Transaction{}, fmt.Errorf("%w: paypal: order %s has no approval link", ErrPaymentProvider, order.ID)
	}

	p.logger.Info("paypal order created",
		zap.String("order_id", req.OrderID),
		zap.String("paypal_order_id", order.ID),
		zap.Int64("item_total", itemTotal),
		zap.Int64("discount", discount),
	)

	return Transaction{ID: order.ID, ApprovalURL: approval}, nil
}

// RetrieveTransactionStatus получает заказ PayPal и его статус.
func (p *PayPal) RetrieveTransactionStatus(ctx context.Context, id string) (TransactionStatus, error) {
	var order paypalOrder
	if err := p.do(ctx, http.MethodGet, "/v2/checkout/orders/"+id, "", nil, &order); err != nil {
		return TransactionStatus{}, fmt.Errorf("%w: paypal: get order: %v", ErrPaymentProvider, err)
	}
	return order.status(), nil
}

// Capture списывает одобренный покупателем заказ PayPal.
func (p *PayPal) Capture(ctx context.Context, id string) (TransactionStatus, error) {
	var order paypalOrder
	if err := p.do(ctx, http.MethodPost, "/v2/checkout/orders/"+id+"/capture", "capture-"+id, struct{}{}, &order); err != nil {
		return TransactionStatus{}, fmt.Errorf("%w: paypal: capture order: %v", ErrPaymentProvider, err)
	}

	st := order.status()
	p.logger.Info("paypal order captured",
		zap.String("paypal_order_id", id),
		zap.String("status", st.ProviderStatus),
		zap.Int64("fees", st.FeesCents),
	)
	return st, nil
}

func (o paypalOrder) status() TransactionStatus {
	var fees int64
	for _, unit := range o.PurchaseUnits {
		for _, c := range unit.Payments.Captures {
			if c.SellerReceivableBreakdown == nil || c.SellerReceivableBreakdown.PayPalFee == nil {
				continue
			}
			cents, err := pricing.ParseAmount(c.SellerReceivableBreakdown.PayPalFee.Value)
			if err != nil {
				continue
			}
			fees += cents
		}
	}
	status := MapStatus(model.ProviderPayPal, o.Status)
	return TransactionStatus{
		ProviderStatus: o.Status,
		Status:         status,
		FeesCents:      fees,
		Attempted:      status != model.OrderStatusPending,
	}
}

type paypalToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken возвращает кэшированный токен client credentials, обновляя его за минуту до истечения.
func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.tokenExp) {
		return p.token, nil
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token",
		strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("do token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: unexpected status: %d", resp.StatusCode)
	}

	var tok paypalToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("token request: empty access token")
	}

	p.token = tok.AccessToken
	p.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func (p *PayPal) do(ctx context.Context, method, path, requestID string, in, out any) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status: %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// retryLogger пишет сообщения retryablehttp в zap.
type retryLogger struct {
	l *zap.SugaredLogger
}

func (r retryLogger) Error(msg string, kv ...interface{}) { r.l.Errorw(msg, kv...) }
func (r retryLogger) Info(msg string, kv ...interface{})  { r.l.Debugw(msg, kv...) }
func (r retryLogger) Debug(msg string, kv ...interface{}) { r.l.Debugw(msg, kv...) }
func (r retryLogger) Warn(msg string, kv ...interface{})  { r.l.Warnw(msg, kv...) }
