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

type SellerRepository interface {
	Create(ctx context.Context, seller *domain.Seller) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Seller, error)
	GetByUserID(ctx context.Context, userID int64) (*domain.Seller, error)
	GetCommissionRate(ctx context.Context, tx pgx.Tx, sellerID int64) (int64, error)
}

type sellerRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSellerRepository(pool *pgxpool.Pool, logger *zap.Logger) SellerRepository {
	return &sellerRepo{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("repository/seller_repo"),
	}
}

func (r *sellerRepo) Create(ctx context.Context, seller *domain.Seller) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "SellerRepository.Create")
	defer span.End()

	span.SetAttributes(
		attribute.String("business_name", seller.BusinessName),
	)

	query := `
		INSERT INTO sellers (user_id, business_name, commission_rate, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id;
	`

	err := r.pool.QueryRow(
		ctx,
		query,
		seller.UserID,
		seller.BusinessName,
		seller.CommissionRate,
		string(seller.Status),
	).Scan(&seller.ID)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to create seller",
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to create seller: %w", err)
	}

	return seller.ID, nil
}

func (r *sellerRepo) GetByID(ctx context.Context, id int64) (*domain.Seller, error) {
	ctx, span := r.tracer.Start(ctx, "SellerRepository.GetByID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", id),
	)

	return r.get(ctx, "id", id)
}

func (r *sellerRepo) GetByUserID(ctx context.Context, userID int64) (*domain.Seller, error) {
	ctx, span := r.tracer.Start(ctx, "SellerRepository.GetByUserID")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("user_id", userID),
	)

	return r.get(ctx, "user_id", userID)
}

func (r *sellerRepo) get(ctx context.Context, column string, id int64) (*domain.Seller, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, business_name, commission_rate, status, created_at, updated_at
		FROM sellers
		WHERE %s = $1;
	`, column)

	var s domain.Seller
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.UserID,
		&s.BusinessName,
		&s.CommissionRate,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSellerNotFound
	}
	if err != nil {
		mylogger.Error(
			ctx,
			r.logger,
			"Failed to get seller",
			zap.String("column", column),
			zap.Int64("id", id),
			zap.Error(err),
		)

		return nil, fmt.Errorf("failed to get seller: %w", err)
	}

	return &s, nil
}

// GetCommissionRate reads the rate inside the release transaction so a rate
// change between payment and delivery applies to the release.
func (r *sellerRepo) GetCommissionRate(ctx context.Context, tx pgx.Tx, sellerID int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "SellerRepository.GetCommissionRate")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("seller_id", sellerID),
	)

	query := `
		SELECT commission_rate
		FROM sellers
		WHERE id = $1;
	`

	var rate int64
	err := tx.QueryRow(ctx, query, sellerID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrSellerNotFound
	}
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Failed to get commission rate",
			zap.Int64("seller_id", sellerID),
			zap.Error(err),
		)

		return 0, fmt.Errorf("failed to get commission rate: %w", err)
	}

	return rate, nil
}
