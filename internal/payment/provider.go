// Package payment содержит клиентов платёжных систем: Stripe (карты) и PayPal (переход на сайт PayPal).
package payment

import (
	"context"
	"errors"

	"github.com/mmeshcher/bundle-checkout/internal/model"
)

// ErrPaymentProvider оборачивает любые ошибки обращения к платёжной системе.
var ErrPaymentProvider = errors.New("payment provider error")

// TransactionRequest: данные для создания платежа. Строки и суммы уже проверены сервером.
type TransactionRequest struct {
	OrderID     string
	OrderNumber string
	AmountCents int64
	Currency    string
	Customer    model.Customer
	Lines       []model.CartLine
	Description string
	Metadata    map[string]string
}

// Transaction: созданный в платёжной системе платёж.
// Для Stripe заполняется ClientSecret, для PayPal заполняется ApprovalURL.
type Transaction struct {
	ID           string
	ClientSecret string
	ApprovalURL  string
}

// TransactionStatus: состояние платежа по данным платёжной системы.
type TransactionStatus struct {
	ProviderStatus string
	Status         model.OrderStatus
	FeesCents      int64
	// Attempted сообщает, что покупатель пытался оплатить или платёж завершён на стороне платёжной системы.
	// Брошенный платёж Stripe без попытки оплаты тоже выглядит как requires_payment_method.
	Attempted bool
}

// Provider создаёт платежи и запрашивает их статус.
type Provider interface {
	Name() model.PaymentProvider
	CreateTransaction(ctx context.Context, req TransactionRequest) (Transaction, error)
	RetrieveTransactionStatus(ctx context.Context, id string) (TransactionStatus, error)
}

// Capturer реализуют платёжные системы, где оплату нужно списать после одобрения покупателем.
type Capturer interface {
	Capture(ctx context.Context, id string) (TransactionStatus, error)
}

// MapStatus переводит статус платёжной системы в статус заказа.
// Всё, что не является явным успехом или отказом, остаётся pending.
func MapStatus(provider model.PaymentProvider, raw string) model.OrderStatus {
	switch provider {
	case model.ProviderStripe:
		switch raw {
		case "succeeded":
			return model.OrderStatusPaid
		case "requires_payment_method", "canceled":
			return model.OrderStatusFailed
		}
	case model.ProviderPayPal:
		switch raw {
		case "COMPLETED":
			return model.OrderStatusPaid
		case "DECLINED", "FAILED":
			return model.OrderStatusFailed
		}
	}
	return model.OrderStatusPending
}
