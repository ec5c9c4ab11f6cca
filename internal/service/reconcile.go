package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const reconcileBatchSize = 100

// StartReconciliation запускает фоновую сверку зависших заказов в статусе pending.
// Сверка использует тот же путь, что и Confirm, но меняет статус только после попытки оплаты.
// Брошенные заказы и заказы без ответа платёжной системы остаются pending.
func (s *Service) StartReconciliation(ctx context.Context) {
	if len(s.providers) == 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.reconcileInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reconcileBatch(ctx)
			}
		}
	}()
}

func (s *Service) reconcileBatch(ctx context.Context) int {
	orders, err := s.repo.GetPendingOrders(ctx, s.now().Add(-s.reconcileMinAge), reconcileBatchSize)
	if err != nil {
		s.logger.Error("failed to load pending orders", zap.Error(err))
		return 0
	}

	updated := 0
	for i := range orders {
		if ctx.Err() != nil {
			return updated
		}
		o := &orders[i]
		res, err := s.confirmOrder(ctx, o, true)
		if err != nil {
			s.logger.Warn("failed to reconcile order",
				zap.String("order_id", o.ID),
				zap.String("provider", string(o.Provider)),
				zap.Error(err),
			)
			continue
		}
		if res.Status != o.Status {
			updated++
		}
	}

	if len(orders) > 0 {
		s.logger.Info("pending orders reconciled", zap.Int("checked", len(orders)), zap.Int("updated", updated))
	}
	return updated
}
