package service

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
	"github.com/bibekshah220/app-server/internal/gateway"
	"github.com/bibekshah220/app-server/internal/repository"
	"github.com/bibekshah220/app-server/pkg/mylogger"
)

type WalletService interface {
	GetWallet(ctx context.Context, sellerID int64) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, sellerID, limit, offset int64) ([]domain.Transaction, int64, error)
	Withdraw(ctx context.Context, sellerID, amount int64) (*domain.Transaction, error)
}

type walletService struct {
	pool         *pgxpool.Pool
	logger       *zap.Logger
	walletRepo   repository.WalletRepository
	txRepo       repository.TransactionRepository
	payoutClient gateway.PayoutClient
	tracer       trace.Tracer
}

func NewWalletService(
	pool *pgxpool.Pool,
	logger *zap.Logger,
	walletRepo repository.WalletRepository,
	txRepo repository.TransactionRepository,
	payoutClient gateway.PayoutClient,
) WalletService {
	return &walletService{
		pool:         pool,
		logger:       logger,
		walletRepo:   walletRepo,
		txRepo:       txRepo,
		payoutClient: payoutClient,
		tracer:       otel.Tracer("wallet_service"),
	}
}

func (s *walletService) GetWallet(ctx context.Context, sellerID int64) (*domain.Wallet, error) {
	ctx, span := s.tracer.Start(ctx, "WalletService.GetWallet")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
	)

	return s.walletRepo.GetOrCreate(ctx, sellerID)
}

func (s *walletService) ListTransactions(ctx context.Context, sellerID, limit, offset int64) ([]domain.Transaction, int64, error) {
	ctx, span := s.tracer.Start(ctx, "WalletService.ListTransactions")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	wallet, err := s.walletRepo.GetOrCreate(ctx, sellerID)
	if err != nil {
		return nil, 0, err
	}

	return s.txRepo.ListByWallet(ctx, wallet.ID, limit, offset)
}

// Withdraw pays out from the seller's withdrawable balance. The debit and a
// pending withdrawal row commit BEFORE the gateway call: the conditional
// debit bounds how much can leave the platform even under concurrent
// withdrawals, and the pending row keeps a ledger trace no matter where the
// flow fails afterwards. A rejected payout is compensated by crediting the
// funds back and marking the row failed.
func (s *walletService) Withdraw(ctx context.Context, sellerID, amount int64) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "WalletService.Withdraw")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
		attribute.Int64("amount", amount),
	)

	if _, err := s.walletRepo.GetOrCreate(ctx, sellerID); err != nil {
		return nil, err
	}

	transaction, err := s.reserveWithdrawal(ctx, sellerID, amount)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientBalance) {
			mylogger.Warn(
				ctx,
				s.logger,
				"Withdrawal rejected, insufficient balance",
				zap.Int64("seller_id", sellerID),
				zap.Int64("amount", amount),
			)
		}

		return nil, err
	}

	gatewayRef, err := s.payoutClient.RequestPayout(ctx, sellerID, amount)
	if err != nil {
		if compErr := s.compensateWithdrawal(ctx, sellerID, amount, transaction.ID); compErr != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to compensate rejected withdrawal",
				zap.Int64("seller_id", sellerID),
				zap.String("transaction_id", transaction.ID),
				zap.Error(compErr),
			)

			return nil, compErr
		}

		return nil, err
	}

	if err := s.completeWithdrawal(ctx, transaction.ID, gatewayRef); err != nil {
		// The payout went through; the row stays pending for reconciliation
		// rather than compensating a disbursement that already happened.
		mylogger.Error(
			ctx,
			s.logger,
			"Payout succeeded but withdrawal not finalized",
			zap.Int64("seller_id", sellerID),
			zap.String("transaction_id", transaction.ID),
			zap.String("gateway_ref", gatewayRef),
			zap.Error(err),
		)

		return nil, err
	}

	transaction.Status = domain.TransactionCompleted
	transaction.GatewayRef = gatewayRef

	mylogger.Info(
		ctx,
		s.logger,
		"Withdrawal completed",
		zap.Int64("seller_id", sellerID),
		zap.Int64("amount", amount),
		zap.String("gateway_ref", gatewayRef),
	)

	return transaction, nil
}

// reserveWithdrawal debits the balance and records a pending withdrawal in
// one transaction. After it commits the funds are locked away from any
// concurrent withdrawal.
func (s *walletService) reserveWithdrawal(ctx context.Context, sellerID, amount int64) (*domain.Transaction, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	walletID, err := s.walletRepo.DebitBalance(ctx, tx, sellerID, amount)
	if err != nil {
		return nil, err
	}

	transaction := &domain.Transaction{
		WalletID:    walletID,
		Type:        domain.TransactionWithdrawal,
		Amount:      amount,
		Description: "Withdrawal to bank account",
		Status:      domain.TransactionPending,
	}

	if err := s.txRepo.Append(ctx, tx, transaction); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return transaction, nil
}

func (s *walletService) compensateWithdrawal(ctx context.Context, sellerID, amount int64, transactionID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if _, err := s.walletRepo.CreditBalance(ctx, tx, sellerID, amount); err != nil {
		return err
	}

	if err := s.txRepo.Finalize(ctx, tx, transactionID, domain.TransactionFailed, ""); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *walletService) completeWithdrawal(ctx context.Context, transactionID, gatewayRef string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(ctx, s.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	if err := s.txRepo.Finalize(ctx, tx, transactionID, domain.TransactionCompleted, gatewayRef); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *walletService) rollback(ctx context.Context, tx pgx.Tx) {
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
