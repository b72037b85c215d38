package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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

// SettlementService owns every wallet mutation. Money enters escrow when a
// payment is captured and moves to the seller's withdrawable balance only
// when the order is delivered.
type SettlementService interface {
	HoldFunds(ctx context.Context, orderID int64, paymentRef string) error
	UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error
	CancelOrder(ctx context.Context, orderID int64) error
}

type settlementService struct {
	pool        *pgxpool.Pool
	logger      *zap.Logger
	orderRepo   repository.OrderRepository
	walletRepo  repository.WalletRepository
	txRepo      repository.TransactionRepository
	sellerRepo  repository.SellerRepository
	productRepo repository.ProductRepository
	outboxRepo  worker.OutboxRepository
	orderTopic  string
	tracer      trace.Tracer
}

func NewSettlementService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	walletRepo repository.WalletRepository,
	txRepo repository.TransactionRepository,
	sellerRepo repository.SellerRepository,
	productRepo repository.ProductRepository,
	outboxRepo worker.OutboxRepository,
	orderTopic string,
) SettlementService {
	return &settlementService{
		pool:        pool,
		logger:      logger,
		orderRepo:   orderRepo,
		walletRepo:  walletRepo,
		txRepo:      txRepo,
		sellerRepo:  sellerRepo,
		productRepo: productRepo,
		outboxRepo:  outboxRepo,
		orderTopic:  orderTopic,
		tracer:      otel.Tracer("settlement_service"),
	}
}

// HoldFunds moves a captured payment into the seller's escrow balance.
// The order flip, the wallet credit and the audit row commit together.
// A second callback for the same order returns ErrAlreadyHeld and leaves
// the wallet untouched.
func (s *settlementService) HoldFunds(ctx context.Context, orderID int64, paymentRef string) error {
	ctx, span := s.tracer.Start(ctx, "SettlementService.HoldFunds")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	return s.withRetry(ctx, func() error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer s.rollback(ctx, tx)

		sellerID, totalAmount, err := s.orderRepo.MarkPaid(ctx, tx, orderID, paymentRef)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyHeld) {
				mylogger.Warn(
					ctx,
					s.logger,
					"Duplicate payment callback, funds already held",
					zap.Int64("order_id", orderID),
				)
			}

			return err
		}

		walletID, err := s.walletRepo.CreditEscrow(ctx, tx, sellerID, totalAmount)
		if err != nil {
			return err
		}

		transaction := &domain.Transaction{
			WalletID:    walletID,
			OrderID:     &orderID,
			Type:        domain.TransactionCredit,
			Amount:      totalAmount,
			Description: fmt.Sprintf("Escrow hold for order #%d", orderID),
			GatewayRef:  paymentRef,
		}

		if err := s.txRepo.Append(ctx, tx, transaction); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		mylogger.Info(
			ctx,
			s.logger,
			"Funds held in escrow",
			zap.Int64("order_id", orderID),
			zap.Int64("seller_id", sellerID),
			zap.Int64("amount", totalAmount),
		)

		return nil
	})
}

// UpdateOrderStatus advances the fulfillment state machine. The delivered
// transition doubles as settlement: the escrow release happens in the same
// transaction as the status flip, so an order can never be delivered without
// its funds being released, or vice versa.
func (s *settlementService) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	ctx, span := s.tracer.Start(ctx, "SettlementService.UpdateOrderStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
		attribute.String("status", string(status)),
	)

	switch status {
	case domain.OrderStatusShipped:
		return s.markShipped(ctx, orderID)
	case domain.OrderStatusDelivered:
		return s.withRetry(ctx, func() error {
			return s.releaseEscrow(ctx, orderID)
		})
	case domain.OrderStatusCancelled:
		return s.CancelOrder(ctx, orderID)
	default:
		return domain.ErrInvalidStatusTransition
	}
}

func (s *settlementService) markShipped(ctx context.Context, orderID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.orderRepo.MarkShipped(ctx, tx, orderID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *settlementService) releaseEscrow(ctx context.Context, orderID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	sellerID, totalAmount, err := s.orderRepo.MarkDelivered(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotHeld) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Release skipped, order funds not held",
				zap.Int64("order_id", orderID),
			)
		}

		return err
	}

	// The commission rate is read here, not at checkout, so a rate change
	// between payment and delivery applies to this release.
	rate, err := s.sellerRepo.GetCommissionRate(ctx, tx, sellerID)
	if err != nil {
		return err
	}

	commission := totalAmount * rate / 100
	earnings := totalAmount - commission

	walletID, err := s.walletRepo.ReleaseEscrow(ctx, tx, sellerID, totalAmount, earnings, commission)
	if err != nil {
		return err
	}

	// The release row records the full amount leaving escrow; the commission
	// row documents the platform's cut of it.
	release := &domain.Transaction{
		WalletID:    walletID,
		OrderID:     &orderID,
		Type:        domain.TransactionEscrowRelease,
		Amount:      totalAmount,
		Description: fmt.Sprintf("Escrow release for order #%d", orderID),
	}
	if err := s.txRepo.Append(ctx, tx, release); err != nil {
		return err
	}

	if commission > 0 {
		fee := &domain.Transaction{
			WalletID:    walletID,
			OrderID:     &orderID,
			Type:        domain.TransactionCommission,
			Amount:      commission,
			Description: fmt.Sprintf("Marketplace commission for order #%d", orderID),
		}
		if err := s.txRepo.Append(ctx, tx, fee); err != nil {
			return err
		}
	}

	event := &domain.EscrowReleasedEvent{
		OrderID:    orderID,
		SellerID:   sellerID,
		Amount:     totalAmount,
		Commission: commission,
		Earnings:   earnings,
	}

	if err := s.emitEvent(ctx, tx, "Order", orderID, "EscrowReleased", event); err != nil {
		return fmt.Errorf("failed to emit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Escrow released",
		zap.Int64("order_id", orderID),
		zap.Int64("seller_id", sellerID),
		zap.Int64("earnings", earnings),
		zap.Int64("commission", commission),
	)

	return nil
}

// CancelOrder cancels an order that was never paid and returns its reserved
// stock to the catalog. Paid orders cannot be cancelled through this path.
func (s *settlementService) CancelOrder(ctx context.Context, orderID int64) error {
	ctx, span := s.tracer.Start(ctx, "SettlementService.CancelOrder")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", orderID),
	)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.orderRepo.CancelPending(ctx, tx, orderID); err != nil {
		if errors.Is(err, domain.ErrOrderNotCancellable) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Order can no longer be cancelled",
				zap.Int64("order_id", orderID),
			)
		}

		return err
	}

	items, err := s.orderRepo.GetItems(ctx, tx, orderID)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := s.productRepo.IncreaseStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	event := &domain.OrderCancelledEvent{
		OrderID: orderID,
		Items:   items,
	}

	if err := s.emitEvent(ctx, tx, "Order", orderID, "OrderCancelled", event); err != nil {
		return fmt.Errorf("failed to emit event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Order cancelled, stock returned",
		zap.Int64("order_id", orderID),
		zap.Int("item_count", len(items)),
	)

	return nil
}

func (s *settlementService) emitEvent(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, eventType string, payload any) error {
	wrapper := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	wrapperBytes, err := json.Marshal(wrapper)
	if err != nil {
		return fmt.Errorf("failed to marshal wrapper: %w", err)
	}

	// Settlement events ride the order topic. The payment topic carries only
	// inbound gateway events, which this service itself consumes.
	outboxEvent := &outboxDomain.OutboxEvent{
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprintf("%d", aggregateID),
		EventType:     eventType,
		Payload:       wrapperBytes,
		Topic:         s.orderTopic,
	}

	return s.outboxRepo.SaveOutboxEvent(ctx, tx, outboxEvent)
}

func (s *settlementService) rollback(ctx context.Context, tx pgx.Tx) {
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
}

// withRetry reruns fn when Postgres aborts it with a serialization failure
// or a deadlock. Anything else returns immediately.
func (s *settlementService) withRetry(ctx context.Context, fn func() error) error {
	const attempts = 3

	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}

		mylogger.Warn(
			ctx,
			s.logger,
			"Retrying settlement transaction",
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}

	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}

	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
