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

type WalletRepository interface {
	GetOrCreate(ctx context.Context, sellerID int64) (*domain.Wallet, error)
	GetBySellerID(ctx context.Context, sellerID int64) (*domain.Wallet, error)
	CreditEscrow(ctx context.Context, tx pgx.Tx, sellerID, amount int64) (int64, error)
	ReleaseEscrow(ctx context.Context, tx pgx.Tx, sellerID, total, earnings, commission int64) (int64, error)
	DebitBalance(ctx context.Context, tx pgx.Tx, sellerID, amount int64) (int64, error)
	CreditBalance(ctx context.Context, tx pgx.Tx, sellerID, amount int64) (int64, error)
}

type walletRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewWalletRepository(pool *pgxpool.Pool, logger *zap.Logger) WalletRepository {
	return &walletRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/wallet_repo"),
	}
}

// GetOrCreate lazily provisions a wallet row on first read. The insert is
// a no-op when the row exists, so concurrent first reads are safe.
func (r *walletRepo) GetOrCreate(ctx context.Context, sellerID int64) (*domain.Wallet, error) {
	ctx, span := r.tracer.Start(ctx, "WalletRepository.GetOrCreate")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
	)

	insert := `
		INSERT INTO wallets (seller_id)
		VALUES ($1)
		ON CONFLICT (seller_id) DO NOTHING;
	`

	if _, err := r.pool.Exec(ctx, insert, sellerID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to provision wallet",
			zap.Int64("seller_id", sellerID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to provision wallet: %w", err)
	}

	return r.GetBySellerID(ctx, sellerID)
}

func (r *walletRepo) GetBySellerID(ctx context.Context, sellerID int64) (*domain.Wallet, error) {
	ctx, span := r.tracer.Start(ctx, "WalletRepository.GetBySellerID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
	)

	query := `
		SELECT id, seller_id, balance, escrow_balance, total_earnings, total_commission_paid,
			created_at, updated_at
		FROM wallets
		WHERE seller_id = $1;
	`

	var w domain.Wallet
	err := r.pool.QueryRow(ctx, query, sellerID).Scan(
		&w.ID,
		&w.SellerID,
		&w.Balance,
		&w.EscrowBalance,
		&w.TotalEarnings,
		&w.TotalCommissionPaid,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to get wallet",
			zap.Int64("seller_id", sellerID),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &w, nil
}

// CreditEscrow moves freshly captured payment into the held balance,
// creating the wallet row on the fly for a seller's first sale.
func (r *walletRepo) CreditEscrow(ctx context.Context, tx pgx.Tx, sellerID, amount int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "WalletRepository.CreditEscrow")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
		attribute.Int64("amount", amount),
	)

	query := `
		INSERT INTO wallets (seller_id, escrow_balance)
		VALUES ($1, $2)
		ON CONFLICT (seller_id) DO UPDATE
		SET escrow_balance = wallets.escrow_balance + EXCLUDED.escrow_balance,
			updated_at = NOW()
		RETURNING id;
	`

	var walletID int64
	if err := tx.QueryRow(ctx, query, sellerID, amount).Scan(&walletID); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to credit escrow",
			zap.Int64("seller_id", sellerID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to credit escrow: %w", err)
	}

	return walletID, nil
}

// ReleaseEscrow moves a settled order's funds out of the held balance in one
// statement: earnings to the withdrawable balance, commission out entirely.
// The guard on escrow_balance keeps the wallet from going negative if the
// order was never held.
func (r *walletRepo) ReleaseEscrow(ctx context.Context, tx pgx.Tx, sellerID, total, earnings, commission int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "WalletRepository.ReleaseEscrow")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
		attribute.Int64("total", total),
		attribute.Int64("earnings", earnings),
		attribute.Int64("commission", commission),
	)

	query := `
		UPDATE wallets
		SET escrow_balance = escrow_balance - $2,
			balance = balance + $3,
			total_earnings = total_earnings + $3,
			total_commission_paid = total_commission_paid + $4,
			updated_at = NOW()
		WHERE seller_id = $1 AND escrow_balance >= $2
		RETURNING id;
	`

	var walletID int64
	err := tx.QueryRow(ctx, query, sellerID, total, earnings, commission).Scan(&walletID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotHeld
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to release escrow",
			zap.Int64("seller_id", sellerID),
			zap.Int64("total", total),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to release escrow: %w", err)
	}

	return walletID, nil
}

func (r *walletRepo) DebitBalance(ctx context.Context, tx pgx.Tx, sellerID, amount int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "WalletRepository.DebitBalance")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
		attribute.Int64("amount", amount),
	)

	query := `
		UPDATE wallets
		SET balance = balance - $2, updated_at = NOW()
		WHERE seller_id = $1 AND balance >= $2
		RETURNING id;
	`

	var walletID int64
	err := tx.QueryRow(ctx, query, sellerID, amount).Scan(&walletID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrInsufficientBalance
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to debit balance",
			zap.Int64("seller_id", sellerID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to debit balance: %w", err)
	}

	return walletID, nil
}

// CreditBalance returns previously debited funds to the withdrawable balance.
// Used to compensate a withdrawal whose payout the gateway rejected.
func (r *walletRepo) CreditBalance(ctx context.Context, tx pgx.Tx, sellerID, amount int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "WalletRepository.CreditBalance")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
		attribute.Int64("amount", amount),
	)

	query := `
		UPDATE wallets
		SET balance = balance + $2, updated_at = NOW()
		WHERE seller_id = $1
		RETURNING id;
	`

	var walletID int64
	err := tx.QueryRow(ctx, query, sellerID, amount).Scan(&walletID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrWalletNotFound
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to credit balance",
			zap.Int64("seller_id", sellerID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to credit balance: %w", err)
	}

	return walletID, nil
}
