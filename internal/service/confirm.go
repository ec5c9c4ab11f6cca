package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/bundle-checkout/internal/model"
	"github.com/mmeshcher/bundle-checkout/internal/payment"
)

// ConfirmResult: статус заказа после сверки с платёжной системой.
type ConfirmResult struct {
	OrderID     string
	OrderNumber string
	Status      model.OrderStatus
}

// Confirm сверяет статус заказа с платёжной системой. Оплаченный заказ возвращается без обращения к ней,
// поэтому повторные вызовы безопасны.
func (s *Service) Confirm(ctx context.Context, orderID string) (*ConfirmResult, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.confirmOrder(ctx, order, false)
}

// confirmOrder при background=true не переводит в failed платёж, который покупатель так и не пытался оплатить:
// брошенный заказ остаётся pending.
func (s *Service) confirmOrder(ctx context.Context, order *model.Order, background bool) (*ConfirmResult, error) {
	result := &ConfirmResult{OrderID: order.ID, OrderNumber: order.Number, Status: order.Status}
	if order.Status == model.OrderStatusPaid || order.ProviderReference == "" {
		return result, nil
	}

	provider, err := s.provider(order.Provider)
	if err != nil {
		return nil, err
	}

	st, err := provider.RetrieveTransactionStatus(ctx, order.ProviderReference)
	if err != nil {
		s.logger.Error("failed to retrieve payment status",
			zap.String("order_id", order.ID),
			zap.String("reference", order.ProviderReference),
			zap.Error(err),
		)
		return nil, err
	}

	if background && st.Status == model.OrderStatusFailed && !st.Attempted {
		return result, nil
	}

	return s.applyStatus(ctx, order, st, result)
}

// CapturePayPal списывает одобренный покупателем заказ PayPal и обновляет статус заказа.
func (s *Service) CapturePayPal(ctx context.Context, paypalOrderID string) (*ConfirmResult, error) {
	order, err := s.repo.GetOrderByProviderRef(ctx, model.ProviderPayPal, paypalOrderID)
	if err != nil {
		return nil, err
	}

	result := &ConfirmResult{OrderID: order.ID, OrderNumber: order.Number, Status: order.Status}
	if order.Status == model.OrderStatusPaid {
		return result, nil
	}

	provider, err := s.provider(model.ProviderPayPal)
	if err != nil {
		return nil, err
	}
	capturer, ok := provider.(payment.Capturer)
	if !ok {
		return nil, fmt.Errorf("%w: provider %s cannot capture", ErrProviderUnavailable, provider.Name())
	}

	st, err := capturer.Capture(ctx, paypalOrderID)
	if err != nil {
		s.logger.Error("failed to capture paypal order",
			zap.String("order_id", order.ID),
			zap.String("reference", paypalOrderID),
			zap.Error(err),
		)
		return nil, err
	}

	return s.applyStatus(ctx, order, st, result)
}

func (s *Service) applyStatus(ctx context.Context, order *model.Order, st payment.TransactionStatus, result *ConfirmResult) (*ConfirmResult, error) {
	if st.Status == order.Status && st.FeesCents == order.PaymentFeesCents {
		return result, nil
	}

	if err := s.repo.UpdateOrderStatus(ctx, order.ID, st.Status, st.FeesCents); err != nil {
		s.logger.Error("failed to update order status",
			zap.String("order_id", order.ID),
			zap.String("status", string(st.Status)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("update order status: %w", err)
	}

	s.logger.Info("order status updated",
		zap.String("order_id", order.ID),
		zap.String("provider_status", st.ProviderStatus),
		zap.String("status", string(st.Status)),
		zap.Int64("fees_cents", st.FeesCents),
	)

	result.Status = st.Status
	return result, nil
}

// Receipt: заказ со строками для страницы подтверждения.
type Receipt struct {
	Order *model.Order
	Items []model.OrderItem
}

// OrderReceipt возвращает заказ и его строки.
func (s *Service) OrderReceipt(ctx context.Context, orderID string) (*Receipt, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		s.logger.Error("failed to load order items", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("get order items: %w", err)
	}

	return &Receipt{Order: order, Items: items}, nil
}
