// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/bundle-checkout/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrOrderNotFound возвращается, если заказ не найден.
	ErrOrderNotFound = errors.New("order not found")
	// ErrDuplicateOrderNumber возвращается при совпадении номера заказа с уже существующим.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

var defaultRetryDelays = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool        *pgxpool.Pool
	retryDelays []time.Duration
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool, retryDelays: defaultRetryDelays}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликтах сериализации, взаимных блокировках и обрывах соединения.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := r.retryDelays

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		t := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InsertOrder сохраняет заказ в статусе pending.
func (r *PostgresRepository) InsertOrder(ctx context.Context, o *model.Order) error {
	c := o.Customer
	s := o.Summary
	_, err := r.pool.Exec(ctx,
		`INSERT INTO orders (
			id, order_number, status, payment_provider,
			subtotal_cents, discount_cents, coupon_discount_cents, coupon_code, total_cents,
			email, first_name, last_name, phone, street_address, city, state, zip_code, country,
			newsletter_opt_in, sms_consent,
			line_items_summary, courses_count, assessments_count, addons_count,
			group_coaching_count, consultations_count, oto_accepted, oto_product_sku
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20,
			$21, $22, $23, $24,
			$25, $26, $27, $28
		)`,
		o.ID, o.Number, string(o.Status), string(o.Provider),
		o.SubtotalCents, o.DiscountCents, o.CouponDiscountCents, nullable(o.CouponCode), o.TotalCents,
		c.Email, c.FirstName, c.LastName, nullable(c.Phone), nullable(c.StreetAddress), nullable(c.City),
		nullable(c.State), nullable(c.ZipCode), nullable(c.Country),
		c.Newsletter, c.SMSConsent,
		s.LineItems, s.CoursesCount, s.AssessmentsCount, s.AddonsCount,
		s.GroupCoachingCount, s.ConsultationsCount, s.OTOAccepted, nullable(s.OTOProductSKU),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.Number)
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// InsertOrderItems сохраняет строки заказа одной транзакцией.
func (r *PostgresRepository) InsertOrderItems(ctx context.Context, orderID string, items []model.OrderItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(
			`INSERT INTO order_items (order_id, sku, title, price_cents, discount_cents, is_gift, is_oto)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			orderID, it.SKU, it.Title, it.PriceCents, it.DiscountCents, it.IsGift, it.IsOTO,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// DeleteOrder удаляет заказ вместе со строками. Используется как компенсация при неудачном создании.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	return nil
}

// SetProviderReference сохраняет идентификатор платежа в платёжной системе.
func (r *PostgresRepository) SetProviderReference(ctx context.Context, orderID, reference string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET provider_reference = $2, updated_at = NOW() WHERE id = $1`,
		orderID, reference,
	)
	if err != nil {
		return fmt.Errorf("set provider reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateOrderStatus обновляет статус и комиссию. Оплаченный заказ не меняется.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, feesCents int64) error {
	return r.withRetry(ctx, func() error {
		_, err := r.pool.Exec(ctx,
			`UPDATE orders
			 SET status = $2, payment_fees_cents = $3, updated_at = NOW()
			 WHERE id = $1 AND status <> $4`,
			orderID, string(status), feesCents, string(model.OrderStatusPaid),
		)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}
		return nil
	})
}

const orderColumns = `id, order_number, status, payment_provider, COALESCE(provider_reference, ''),
	subtotal_cents, discount_cents, coupon_discount_cents, COALESCE(coupon_code, ''), total_cents, payment_fees_cents,
	email, first_name, last_name, COALESCE(phone, ''), COALESCE(street_address, ''), COALESCE(city, ''),
	COALESCE(state, ''), COALESCE(zip_code, ''), COALESCE(country, ''), newsletter_opt_in, sms_consent,
	line_items_summary, courses_count, assessments_count, addons_count, group_coaching_count,
	consultations_count, oto_accepted, COALESCE(oto_product_sku, ''), created_at, updated_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o        model.Order
		status   string
		provider string
	)
	c := &o.Customer
	s := &o.Summary
	err := row.Scan(
		&o.ID, &o.Number, &status, &provider, &o.ProviderReference,
		&o.SubtotalCents, &o.DiscountCents, &o.CouponDiscountCents, &o.CouponCode, &o.TotalCents, &o.PaymentFeesCents,
		&c.Email, &c.FirstName, &c.LastName, &c.Phone, &c.StreetAddress, &c.City,
		&c.State, &c.ZipCode, &c.Country, &c.Newsletter, &c.SMSConsent,
		&s.LineItems, &s.CoursesCount, &s.AssessmentsCount, &s.AddonsCount, &s.GroupCoachingCount,
		&s.ConsultationsCount, &s.OTOAccepted, &s.OTOProductSKU, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	o.Provider = model.PaymentProvider(provider)
	return &o, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, ErrOrderNotFound
	}

	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		orderID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// GetOrderByProviderRef возвращает заказ по идентификатору платежа в платёжной системе.
func (r *PostgresRepository) GetOrderByProviderRef(ctx context.Context, provider model.PaymentProvider, reference string) (*model.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_provider = $1 AND provider_reference = $2`,
		string(provider), reference,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order by provider reference: %w", err)
	}
	return o, nil
}

// GetPendingOrders возвращает заказы в статусе pending, созданные раньше before и уже связанные с платежом.
func (r *PostgresRepository) GetPendingOrders(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = $1 AND provider_reference IS NOT NULL AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.OrderStatusPending), before, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetOrderItems возвращает строки заказа.
func (r *PostgresRepository) GetOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sku, title, price_cents, discount_cents, is_gift, is_oto
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var res []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.SKU, &it.Title, &it.PriceCents, &it.DiscountCents, &it.IsGift, &it.IsOTO); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		res = append(res, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
