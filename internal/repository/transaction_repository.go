package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/pkg/mylogger"
)

type TransactionRepository interface {
	Append(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	Finalize(ctx context.Context, tx pgx.Tx, id string, status domain.TransactionStatus, gatewayRef string) error
	ListByWallet(ctx context.Context, walletID, limit, offset int64) ([]domain.Transaction, int64, error)
}

type transactionRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewTransactionRepository(pool *pgxpool.Pool, logger *zap.Logger) TransactionRepository {
	return &transactionRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/transaction_repo"),
	}
}

func (r *transactionRepo) Append(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.Append")
	defer span.End()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = domain.TransactionCompleted
	}

	span.SetAttributes(
		attribute.String("transaction_id", t.ID),
		attribute.Int64("wallet_id", t.WalletID),
		attribute.String("type", string(t.Type)),
		attribute.Int64("amount", t.Amount),
	)

	query := `
		INSERT INTO transactions (id, wallet_id, order_id, type, amount, description, status, gateway_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at;
	`

	if err := tx.QueryRow(
		ctx,
		query,
		t.ID,
		t.WalletID,
		t.OrderID,
		string(t.Type),
		t.Amount,
		t.Description,
		string(t.Status),
		t.GatewayRef,
	).Scan(&t.CreatedAt); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to append transaction",
			zap.Int64("wallet_id", t.WalletID),
			zap.String("type", string(t.Type)),
			zap.Error(err),
		)

		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// Finalize settles a pending row once the external side of the transaction is
// known. Only status and gateway_ref change; amounts are immutable.
func (r *transactionRepo) Finalize(ctx context.Context, tx pgx.Tx, id string, status domain.TransactionStatus, gatewayRef string) error {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.Finalize")
	defer span.End()

	span.SetAttributes(
		attribute.String("transaction_id", id),
		attribute.String("status", string(status)),
	)

	query := `
		UPDATE transactions
		SET status = $2, gateway_ref = $3
		WHERE id = $1;
	`

	if _, err := tx.Exec(ctx, query, id, string(status), gatewayRef); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to finalize transaction",
			zap.String("transaction_id", id),
			zap.Error(err),
		)

		return fmt.Errorf("failed to finalize transaction: %w", err)
	}

	return nil
}

func (r *transactionRepo) ListByWallet(ctx context.Context, walletID, limit, offset int64) ([]domain.Transaction, int64, error) {
	ctx, span := r.tracer.Start(ctx, "TransactionRepository.ListByWallet")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("wallet_id", walletID),
		attribute.Int64("limit", limit),
		attribute.Int64("offset", offset),
	)

	query := `
		SELECT id, wallet_id, order_id, type, amount, description, status, gateway_ref, created_at
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3;
	`

	rows, err := r.pool.Query(ctx, query, walletID, limit, offset)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to list transactions",
			zap.Int64("wallet_id", walletID),
			zap.Error(err),
		)

		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	result, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Transaction, error) {
		var t domain.Transaction
		err := row.Scan(
			&t.ID,
			&t.WalletID,
			&t.OrderID,
			&t.Type,
			&t.Amount,
			&t.Description,
			&t.Status,
			&t.GatewayRef,
			&t.CreatedAt,
		)
		return t, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to scan transactions: %w", err)
	}

	var totalCount int64
	countQuery := `SELECT COUNT(*) FROM transactions WHERE wallet_id = $1;`
	if err := r.pool.QueryRow(ctx, countQuery, walletID).Scan(&totalCount); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	return result, totalCount, nil
}
