package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/repository"
	"github.com/bibekshah220/app-server/pkg/mylogger"
	outboxDomain "github.com/bibekshah220/app-server/pkg/outbox/domain"
	"github.com/bibekshah220/app-server/pkg/outbox/worker"
)

type CheckoutRequest struct {
	UserID        int64
	PaymentMethod string
	Shipping      domain.ShippingAddress
	Lines         []CheckoutLine
}

type CheckoutService interface {
	Checkout(ctx context.Context, req *CheckoutRequest) ([]*domain.Order, error)
}

type checkoutService struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	productRepo repository.ProductRepository
	orderRepo   repository.OrderRepository
	outboxRepo  worker.OutboxRepository
	orderTopic  string
	tracer      trace.Tracer
}

func NewCheckoutService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	productRepo repository.ProductRepository,
	orderRepo repository.OrderRepository,
	outboxRepo worker.OutboxRepository,
	orderTopic string,
) CheckoutService {
	return &checkoutService{
		pool:        pool,
		logger:      logger,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		outboxRepo:  outboxRepo,
		orderTopic:  orderTopic,
		tracer:      otel.Tracer("checkout_service"),
	}
}

// Checkout turns one mixed cart into one order per seller. Stock reservation,
// order rows and outbox events commit in a single transaction, so either every
// seller's order exists or none does.
func (s *checkoutService) Checkout(ctx context.Context, req *CheckoutRequest) ([]*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "CheckoutService.Checkout")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", req.UserID),
		attribute.Int("line_count", len(req.Lines)),
	)

	// Guard non-HTTP callers too; the DTO layer validates the same rules.
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", domain.ErrValidation)
	}
	for _, line := range req.Lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrValidation)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		err := tx.Rollback(cleanupCtx)

		if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				s.logger,
				"Error rolling back transaction",
				zap.Error(err),
			)
		}
	}()

	ids := make([]int64, 0, len(req.Lines))
	for _, line := range req.Lines {
		ids = append(ids, line.ProductID)
	}

	products, err := s.productRepo.ResolveForCheckout(ctx, tx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cart products: %w", err)
	}

	for _, line := range req.Lines {
		if _, ok := products[line.ProductID]; !ok {
			mylogger.Warn(
				ctx,
				s.logger,
				"Cart references unknown product",
				zap.Int64("product_id", line.ProductID),
			)

			return nil, domain.ErrProductNotFound
		}
	}

	groups := splitBySeller(req.Lines, products)

	orders := make([]*domain.Order, 0, len(groups))
	for _, group := range groups {
		for _, item := range group.Items {
			if err := s.productRepo.DecreaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				if errors.Is(err, domain.ErrInsufficientStock) {
					mylogger.Warn(
						ctx,
						s.logger,
						"Insufficient stock, aborting checkout",
						zap.Int64("product_id", item.ProductID),
						zap.Int32("quantity", item.Quantity),
					)

					return nil, err
				}

				return nil, fmt.Errorf("failed to reserve stock: %w", err)
			}
		}

		order := &domain.Order{
			UserID:        req.UserID,
			SellerID:      group.SellerID,
			Items:         group.Items,
			Status:        domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusPending,
			PaymentMethod: req.PaymentMethod,
			Shipping:      req.Shipping,
		}
		order.CalculateTotal()

		if err := s.orderRepo.CreateOrder(ctx, tx, order); err != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to create order",
				zap.Int64("user_id", req.UserID),
				zap.Int64("seller_id", group.SellerID),
				zap.Error(err),
			)

			return nil, fmt.Errorf("failed to create order: %w", err)
		}

		event := &domain.OrderCreatedEvent{
			OrderID:     order.ID,
			UserID:      order.UserID,
			SellerID:    order.SellerID,
			TotalAmount: order.TotalAmount,
			Items:       order.Items,
		}

		if err := s.emitEvent(ctx, tx, "Order", order.ID, "OrderCreated", event); err != nil {
			return nil, fmt.Errorf("failed to emit event: %w", err)
		}

		orders = append(orders, order)
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Checkout completed",
		zap.Int64("user_id", req.UserID),
		zap.Int("order_count", len(orders)),
	)

	return orders, nil
}

func (s *checkoutService) emitEvent(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, eventType string, payload any) error {
	wrapper := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal wrapper: %w", err)
	}

	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprintf("%d", aggregateID),
		EventType:     eventType,
		Payload:       wrapperBytes,
		Topic:         s.orderTopic,
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}
