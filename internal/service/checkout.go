package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/payment"
	"github.com/mmeshcher/bundle-checkout/internal/pricing"
	"github.com/mmeshcher/bundle-checkout/internal/repository"
	"github.com/mmeshcher/bundle-checkout/internal/validation"
)

const orderNumberAttempts = 3

// CheckoutRequest: корзина, итоги и данные покупателя в том виде, в каком их прислал клиент.
type CheckoutRequest struct {
	Provider   model.PaymentProvider
	Lines      []model.CartLine
	Totals     model.Totals
	CouponCode string
	Customer   model.Customer
}

// CheckoutResult: созданный заказ и данные для завершения оплаты на клиенте.
type CheckoutResult struct {
	OrderID       string
	OrderNumber   string
	Provider      model.PaymentProvider
	TransactionID string
	ClientSecret  string
	ApprovalURL   string
	Totals        model.Totals
}

// Checkout проверяет корзину по серверному каталогу, создаёт заказ в статусе pending и платёж.
// Суммы заказа и платежа берутся только из серверного пересчёта.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	provider, err := s.provider(req.Provider)
	if err != nil {
		return nil, err
	}
	if req.Provider == model.ProviderPayPal && !s.methods.Enabled("paypal") {
		return nil, ErrProviderUnavailable
	}

	if err := validation.ValidateCustomer(req.Customer); err != nil {
		return nil, err
	}

	rules := s.rules.Rules()
	res := validation.ValidateCart(rules, req.Lines, req.Totals, req.CouponCode)
	if !res.Valid {
		s.logger.Warn("cart validation failed",
			zap.String("provider", string(req.Provider)),
			zap.String("kind", string(res.Kind)),
			zap.String("detail", res.Detail),
			zap.String("rules_version", rules.Version),
		)
		return nil, fmt.Errorf("%w: %w", ErrValidation, res.Err())
	}

	order := &model.Order{
		ID:                  uuid.NewString(),
		Status:              model.OrderStatusPending,
		Provider:            req.Provider,
		SubtotalCents:       pricing.ToCents(res.Totals.Subtotal),
		DiscountCents:       pricing.ToCents(res.Totals.Discount),
		CouponDiscountCents: pricing.ToCents(res.Totals.CouponDiscount),
		TotalCents:          pricing.ToCents(res.Totals.Total),
		Customer:            req.Customer,
		Summary:             orderSummary(res.Lines),
	}
	if res.Coupon.Valid {
		order.CouponCode = pricing.NormalizeCouponCode(req.CouponCode)
	}

	if err := s.insertOrder(ctx, order); err != nil {
		return nil, err
	}

	if err := s.repo.InsertOrderItems(ctx, order.ID, orderItems(res.Lines)); err != nil {
		s.logger.Error("failed to insert order items", zap.String("order_id", order.ID), zap.Error(err))
		if delErr := s.repo.DeleteOrder(ctx, order.ID); delErr != nil {
			s.logger.Error("failed to delete incomplete order", zap.String("order_id", order.ID), zap.Error(delErr))
		}
		return nil, fmt.Errorf("insert order items: %w", err)
	}

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.Number),
		zap.String("provider", string(order.Provider)),
		zap.Int64("total_cents", order.TotalCents),
	)

	tx, err := provider.CreateTransaction(ctx, payment.TransactionRequest{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		AmountCents: order.TotalCents,
		Currency:    s.currency,
		Customer:    req.Customer,
		Lines:       res.Lines,
		Description: orderDescription(res.Lines, req.Customer),
		Metadata:    paymentMetadata(order, res.Lines, res.Totals, rules.Version, s.currency),
	})
	if err != nil {
		s.logger.Error("failed to create payment",
			zap.String("order_id", order.ID),
			zap.String("provider", string(order.Provider)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.repo.SetProviderReference(ctx, order.ID, tx.ID); err != nil {
		s.logger.Error("failed to store provider reference",
			zap.String("order_id", order.ID),
			zap.String("reference", tx.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("set provider reference: %w", err)
	}

	return &CheckoutResult{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		Provider:      order.Provider,
		TransactionID: tx.ID,
		ClientSecret:  tx.ClientSecret,
		ApprovalURL:   tx.ApprovalURL,
		Totals:        res.Totals,
	}, nil
}

// insertOrder сохраняет заказ, подбирая новый номер при совпадении.
func (s *Service) insertOrder(ctx context.Context, order *model.Order) error {
	var err error
	for i := 0; i < orderNumberAttempts; i++ {
		order.Number = orderNumber(order.Provider, order.Customer, s.now())
		err = s.repo.InsertOrder(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicateOrderNumber) {
			break
		}
		s.logger.Debug("order number collision", zap.String("order_number", order.Number))
	}
	s.logger.Error("failed to insert order", zap.String("order_id", order.ID), zap.Error(err))
	return fmt.Errorf("insert order: %w", err)
}
