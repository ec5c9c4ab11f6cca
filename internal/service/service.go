// Package service реализует оформление заказов: проверку корзины, создание заказа и платежа,
// подтверждение оплаты и фоновую сверку статусов.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/payment"
	"github.com/mmeshcher/bundle-checkout/internal/paymentmethod"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
	"github.com/mmeshcher/bundle-checkout/internal/repository"
	"github.com/mmeshcher/bundle-checkout/internal/validation"
)

var (
	// ErrValidation возвращается, если корзина не прошла серверную проверку.
	ErrValidation = errors.New("cart validation failed")
	// ErrInvalidCustomer возвращается при некорректных данных покупателя.
	ErrInvalidCustomer = validation.ErrInvalidCustomer
	// ErrPaymentProvider возвращается при ошибке платёжной системы.
	ErrPaymentProvider = payment.ErrPaymentProvider
	// ErrProviderUnavailable возвращается, если платёжная система не настроена или отключена.
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = repository.ErrOrderNotFound
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	InsertOrder(ctx context.Context, o *model.Order) error
	InsertOrderItems(ctx context.Context, orderID string, items []model.OrderItem) error
	DeleteOrder(ctx context.Context, orderID string) error
	SetProviderReference(ctx context.Context, orderID, reference string) error
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, feesCents int64) error
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	GetOrderByProviderRef(ctx context.Context, provider model.PaymentProvider, reference string) (*model.Order, error)
	GetPendingOrders(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error)
}

// Options содержит необязательные параметры сервиса.
type Options struct {
	Currency          string
	ReconcileInterval time.Duration
	ReconcileMinAge   time.Duration
	Now               func() time.Time
}

// Service содержит бизнес-логику оформления заказов.
type Service struct {
	repo      Repository
	rules     *pricing.Store
	methods   *paymentmethod.Registry
	providers map[model.PaymentProvider]payment.Provider
	logger    *zap.Logger

	currency          string
	reconcileInterval time.Duration
	reconcileMinAge   time.Duration
	now               func() time.Time
}

// NewService создаёт сервис. Платёжные системы, равные nil, пропускаются.
func NewService(
	repo Repository,
	rules *pricing.Store,
	methods *paymentmethod.Registry,
	providers []payment.Provider,
	logger *zap.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if methods == nil {
		methods = paymentmethod.NewDefaultRegistry()
	}

	s := &Service{
		repo:              repo,
		rules:             rules,
		methods:           methods,
		providers:         make(map[model.PaymentProvider]payment.Provider, len(providers)),
		logger:            logger,
		currency:          opts.Currency,
		reconcileInterval: opts.ReconcileInterval,
		reconcileMinAge:   opts.ReconcileMinAge,
		now:               opts.Now,
	}
	for _, p := range providers {
		if p != nil {
			s.providers[p.Name()] = p
		}
	}

	if s.currency == "" {
		s.currency = "usd"
	}
	if s.reconcileInterval <= 0 {
		s.reconcileInterval = time.Minute
	}
	if s.reconcileMinAge <= 0 {
		s.reconcileMinAge = 10 * time.Minute
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Catalog возвращает текущий снимок правил ценообразования.
func (s *Service) Catalog() *pricing.Rules {
	return s.rules.Rules()
}

// Quote рассчитывает корзину по выбору покупателя для отображения.
func (s *Service) Quote(sel pricing.Selection, couponCode string) (pricing.Quote, error) {
	return pricing.Price(sel, couponCode, s.rules.Rules())
}

// ReloadRules перечитывает файл правил ценообразования.
func (s *Service) ReloadRules() error {
	if err := s.rules.Reload(); err != nil {
		s.logger.Error("failed to reload pricing rules", zap.Error(err))
		return err
	}
	s.logger.Info("pricing rules reloaded", zap.String("version", s.rules.Rules().Version))
	return nil
}

// PaymentOptions: способы оплаты, доступные покупателю, и порядок их показа в форме Stripe.
type PaymentOptions struct {
	Methods     []paymentmethod.Method `json:"methods"`
	StripeOrder []string               `json:"stripePaymentMethodOrder"`
	External    []paymentmethod.Method `json:"externalMethods"`
}

// PaymentMethods возвращает доступные способы оплаты. Без валюты берётся валюта страны по умолчанию.
func (s *Service) PaymentMethods(country, currency string, amountCents *int64) PaymentOptions {
	if currency == "" {
		currency = paymentmethod.DefaultCurrency(country)
	}
	return PaymentOptions{
		Methods:     s.methods.Available(country, currency, amountCents),
		StripeOrder: s.methods.StripeOrder(country, currency, amountCents),
		External:    s.methods.External(country, currency, amountCents),
	}
}

// AllPaymentMethods возвращает все способы оплаты, включая выключенные.
func (s *Service) AllPaymentMethods() []paymentmethod.Method {
	return s.methods.All()
}

// TogglePaymentMethod включает или выключает способ оплаты.
func (s *Service) TogglePaymentMethod(id string, enabled bool) error {
	if err := s.methods.Toggle(id, enabled); err != nil {
		return err
	}
	s.logger.Info("payment method toggled", zap.String("method", id), zap.Bool("enabled", enabled))
	return nil
}

func (s *Service) provider(name model.PaymentProvider) (payment.Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, ErrProviderUnavailable
	}
	return p, nil
}
