package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/customer"
	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/model"
)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeCustomerAPI interface {
	FindByEmail(params *stripe.CustomerListParams) (*stripe.Customer, error)
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
}

// customerClient добавляет к клиенту Stripe поиск первого покупателя по фильтру.
type customerClient struct {
	*customer.Client
}

func (c customerClient) FindByEmail(params *stripe.CustomerListParams) (*stripe.Customer, error) {
	it := c.List(params)
	if it.Next() {
		return it.Customer(), nil
	}
	return nil, it.Err()
}

// StripeClients позволяет подменить API Stripe в тестах.
type StripeClients struct {
	Intents   stripeIntentAPI
	Customers stripeCustomerAPI
}

// StripeConfig настраивает провайдера Stripe.
type StripeConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Clients  *StripeClients
	Logger   *zap.Logger
}

// Stripe создаёт PaymentIntent с автоматическим выбором способов оплаты.
type Stripe struct {
	intents   stripeIntentAPI
	customers stripeCustomerAPI
	logger    *zap.Logger
}

// NewStripe создаёт провайдера Stripe.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients StripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = StripeClients{
			Intents:   sc.PaymentIntents,
			Customers: customerClient{sc.Customers},
		}
	}
	if clients.Intents == nil || clients.Customers == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Stripe{
		intents:   clients.Intents,
		customers: clients.Customers,
		logger:    logger,
	}, nil
}

// Name возвращает идентификатор провайдера.
func (s *Stripe) Name() model.PaymentProvider {
	return model.ProviderStripe
}

// CreateTransaction находит или создаёт покупателя Stripe и создаёт PaymentIntent на сумму заказа.
func (s *Stripe) CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error) {
	customerID, err := s.ensureCustomer(ctx, req.Customer)
	if err != nil {
		return Transaction{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		ReceiptEmail: stripe.String(req.Customer.Email),
	}
	params.Context = ctx
	params.SetIdempotencyKey("order-" + req.OrderID)
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := s.intents.New(params)
	if err != nil {
		return Transaction{}, fmt.Errorf("%w: stripe: create payment intent: %v", ErrPaymentProvider, err)
	}

	s.logger.Info("stripe payment intent created",
		zap.String("order_id", req.OrderID),
		zap.String("payment_intent", intent.ID),
		zap.Int64("amount", intent.Amount),
	)

	return Transaction{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// RetrieveTransactionStatus запрашивает PaymentIntent вместе с балансовой транзакцией, чтобы получить комиссию.
func (s *Stripe) RetrieveTransactionStatus(ctx context.Context, id string) (TransactionStatus, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge.balance_transaction")

	intent, err := s.intents.Get(id, params)
	if err != nil {
		return TransactionStatus{}, fmt.Errorf("%w: stripe: retrieve payment intent: %v", ErrPaymentProvider, err)
	}

	return TransactionStatus{
		ProviderStatus: string(intent.Status),
		Status:         MapStatus(model.ProviderStripe, string(intent.Status)),
		FeesCents:      stripeFees(intent),
		Attempted:      intent.Status != stripe.PaymentIntentStatusRequiresPaymentMethod || intent.LastPaymentError != nil,
	}, nil
}

func (s *Stripe) ensureCustomer(ctx context.Context, c model.Customer) (string, error) {
	list := &stripe.CustomerListParams{Email: stripe.String(c.Email)}
	list.Context = ctx
	list.Limit = stripe.Int64(1)

	existing, err := s.customers.FindByEmail(list)
	if err != nil {
		return "", fmt.Errorf("%w: stripe: list customers: %v", ErrPaymentProvider, err)
	}
	if existing != nil {
		s.logger.Debug("found existing stripe customer", zap.String("customer", existing.ID))
		return existing.ID, nil
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(c.Email),
		Name:  stripe.String(c.FullName()),
	}
	params.Context = ctx
	if c.Phone != "" {
		params.Phone = stripe.String(c.Phone)
	}
	if c.Country != "" || c.StreetAddress != "" {
		params.Address = &stripe.AddressParams{
			Line1:      stripe.String(c.StreetAddress),
			City:       stripe.String(c.City),
			State:      stripe.String(c.State),
			PostalCode: stripe.String(c.ZipCode),
			Country:    stripe.String(c.Country),
		}
	}

	created, err := s.customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: stripe: create customer: %v", ErrPaymentProvider, err)
	}
	s.logger.Info("created stripe customer", zap.String("customer", created.ID))
	return created.ID, nil
}

// stripeFees возвращает комиссию в центах. Без раскрытой балансовой транзакции комиссия 0.
func stripeFees(intent *stripe.PaymentIntent) int64 {
	if intent == nil || intent.LatestCharge == nil || intent.LatestCharge.BalanceTransaction == nil {
		return 0
	}
	return intent.LatestCharge.BalanceTransaction.Fee
}
