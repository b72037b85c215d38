package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/pkg/mylogger"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]domain.OrderItem, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListBySeller(ctx context.Context, sellerID int64) ([]domain.Order, error)
	MarkPaid(ctx context.Context, tx pgx.Tx, orderID int64, paymentRef string) (sellerID, totalAmount int64, err error)
	MarkShipped(ctx context.Context, tx pgx.Tx, orderID int64) error
	MarkDelivered(ctx context.Context, tx pgx.Tx, orderID int64) (sellerID, totalAmount int64, err error)
	CancelPending(ctx context.Context, tx pgx.Tx, orderID int64) error
}

type orderRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewOrderRepository(pool *pgxpool.Pool, logger *zap.Logger) OrderRepository {
	return &orderRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/order_repo"),
	}
}

func (r *orderRepo) CreateOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CreateOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", order.UserID),
		attribute.Int64("seller_id", order.SellerID),
		attribute.Int("items_count", len(order.Items)),
	)

	queryOrder := `
		INSERT INTO orders (user_id, seller_id, total_amount, status, payment_status, payment_method,
			shipping_street, shipping_city, shipping_state, shipping_zip, shipping_phone,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`

	if err := tx.QueryRow(
		ctx,
		queryOrder,
		order.UserID,
		order.SellerID,
		order.TotalAmount,
		string(order.Status),
		string(order.PaymentStatus),
		order.PaymentMethod,
		order.Shipping.Street,
		order.Shipping.City,
		order.Shipping.State,
		order.Shipping.Zip,
		order.Shipping.Phone,
	).Scan(
		&order.ID,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		span.RecordError(err)

		mylogger.Warn(
			ctx,
			r.logger,
			"Failed to insert order",
			zap.Int64("user_id", order.UserID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID

		if err := tx.QueryRow(
			ctx,
			queryItem,
			item.OrderID,
			item.ProductID,
			item.Name,
			item.Price,
			item.Quantity,
		).Scan(&item.ID); err != nil {
			span.RecordError(err)

			mylogger.Warn(
				ctx,
				r.logger,
				"Failed to insert order item",
				zap.Int64("order_id", order.ID),
				zap.Int64("product_id", item.ProductID),
				zap.Error(err),
			)

			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return nil
}

// MarkPaid flips payment_status pending -> paid in one conditional statement.
// A duplicate gateway callback affects zero rows and surfaces as ErrAlreadyHeld
// instead of crediting escrow twice.
func (r *orderRepo) MarkPaid(ctx context.Context, tx pgx.Tx, orderID int64, paymentRef string) (int64, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkPaid")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		UPDATE orders
		SET payment_status = 'paid', status = 'paid', payment_ref = $2, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'
		RETURNING seller_id, total_amount;
	`

	var sellerID, totalAmount int64
	err := tx.QueryRow(ctx, query, orderID, paymentRef).Scan(&sellerID, &totalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, r.paidGuardFailure(ctx, tx, orderID)
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark order paid",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return 0, 0, fmt.Errorf("failed to mark order paid: %w", err)
	}

	return sellerID, totalAmount, nil
}

// MarkDelivered is the release guard: it succeeds at most once per order, and
// only after MarkPaid. The escrow_released_at stamp commits in the same
// transaction as the wallet mutation, so a concurrent duplicate sees zero rows.
func (r *orderRepo) MarkDelivered(ctx context.Context, tx pgx.Tx, orderID int64) (int64, int64, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkDelivered")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		UPDATE orders
		SET status = 'delivered',
			delivered_at = COALESCE(delivered_at, NOW()),
			escrow_released_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND payment_status = 'paid' AND escrow_released_at IS NULL
		RETURNING seller_id, total_amount;
	`

	var sellerID, totalAmount int64
	err := tx.QueryRow(ctx, query, orderID).Scan(&sellerID, &totalAmount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, r.guardFailure(ctx, tx, orderID, domain.ErrNotHeld)
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark order delivered",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return 0, 0, fmt.Errorf("failed to mark order delivered: %w", err)
	}

	return sellerID, totalAmount, nil
}

func (r *orderRepo) MarkShipped(ctx context.Context, tx pgx.Tx, orderID int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.MarkShipped")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		UPDATE orders
		SET status = 'shipped', shipped_at = COALESCE(shipped_at, NOW()), updated_at = NOW()
		WHERE id = $1 AND status = 'paid';
	`

	commandTag, err := tx.Exec(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to mark order shipped",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to mark order shipped: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return r.guardFailure(ctx, tx, orderID, domain.ErrInvalidStatusTransition)
	}

	return nil
}

func (r *orderRepo) CancelPending(ctx context.Context, tx pgx.Tx, orderID int64) error {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.CancelPending")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		UPDATE orders
		SET status = 'cancelled', payment_status = 'failed', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND payment_status = 'pending';
	`

	commandTag, err := tx.Exec(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to cancel order",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)

		return fmt.Errorf("failed to cancel order: %w", err)
	}

	if commandTag.RowsAffected() == 0 {
		return r.guardFailure(ctx, tx, orderID, domain.ErrOrderNotCancellable)
	}

	return nil
}

// paidGuardFailure inspects why MarkPaid touched zero rows. A cancelled order
// must not be answered "already processed": its funds were never escrowed and
// the captured payment needs a refund.
func (r *orderRepo) paidGuardFailure(ctx context.Context, tx pgx.Tx, orderID int64) error {
	var paymentStatus string
	err := tx.QueryRow(ctx, "SELECT payment_status FROM orders WHERE id = $1", orderID).Scan(&paymentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check order payment status: %w", err)
	}

	if paymentStatus == "failed" {
		return domain.ErrOrderCancelled
	}

	return domain.ErrAlreadyHeld
}

// guardFailure distinguishes a missing order from a failed idempotency guard
// after a conditional update touched zero rows.
func (r *orderRepo) guardFailure(ctx context.Context, tx pgx.Tx, orderID int64, guardErr error) error {
	var exists bool
	err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", orderID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check order existence: %w", err)
	}

	if !exists {
		return domain.ErrOrderNotFound
	}

	return guardErr
}

func (r *orderRepo) GetItems(ctx context.Context, tx pgx.Tx, orderID int64) ([]domain.OrderItem, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetItems")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	query := `
		SELECT id, order_id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id;
	`

	rows, err := tx.Query(ctx, query, orderID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to query order items",
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var result []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Quantity,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}

		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

func (r *orderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
	)

	query := `
		SELECT id, user_id, seller_id, total_amount, status, payment_status, payment_ref, payment_method,
			shipping_street, shipping_city, shipping_state, shipping_zip, shipping_phone,
			shipped_at, delivered_at, escrow_released_at, created_at, updated_at
		FROM orders
		WHERE id = $1;
	`

	var o domain.Order
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.UserID, &o.SellerID, &o.TotalAmount, &o.Status, &o.PaymentStatus,
		&o.PaymentRef, &o.PaymentMethod,
		&o.Shipping.Street, &o.Shipping.City, &o.Shipping.State, &o.Shipping.Zip, &o.Shipping.Phone,
		&o.ShippedAt, &o.DeliveredAt, &o.EscrowReleasedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to get order",
			zap.Int64("order_id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	itemQuery := `
		SELECT id, order_id, product_id, name, price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id;
	`

	rows, err := r.pool.Query(ctx, itemQuery, id)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Name, &item.Price, &item.Quantity); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return &o, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListByUser")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
	)

	return r.list(ctx, "user_id", userID)
}

func (r *orderRepo) ListBySeller(ctx context.Context, sellerID int64) ([]domain.Order, error) {
	ctx, span := r.tracer.Start(ctx, "OrderRepository.ListBySeller")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
	)

	return r.list(ctx, "seller_id", sellerID)
}

func (r *orderRepo) list(ctx context.Context, column string, id int64) ([]domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, seller_id, total_amount, status, payment_status, payment_ref, payment_method,
			shipping_street, shipping_city, shipping_state, shipping_zip, shipping_phone,
			shipped_at, delivered_at, escrow_released_at, created_at, updated_at
		FROM orders
		WHERE %s = $1
		ORDER BY created_at DESC;
	`, column)

	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list orders",
			zap.String("column", column),
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.SellerID, &o.TotalAmount, &o.Status, &o.PaymentStatus,
			&o.PaymentRef, &o.PaymentMethod,
			&o.Shipping.Street, &o.Shipping.City, &o.Shipping.State, &o.Shipping.Zip, &o.Shipping.Phone,
			&o.ShippedAt, &o.DeliveredAt, &o.EscrowReleasedAt, &o.CreatedAt, &o.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}

		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return orders, nil
}
