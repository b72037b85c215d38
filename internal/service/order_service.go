package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/repository"
)

// OrderQueryService serves the read side of orders. All writes go through
// CheckoutService and SettlementService.
type OrderQueryService interface {
	GetOrder(ctx context.Context, orderID int64) (*domain.Order, error)
	ListUserOrders(ctx context.Context, userID int64) ([]domain.Order, error)
	ListSellerOrders(ctx context.Context, sellerID int64) ([]domain.Order, error)
}

type orderQueryService struct {
	logger    *zap.Logger
	orderRepo repository.OrderRepository
}

func NewOrderQueryService(logger *zap.Logger, orderRepo repository.OrderRepository) OrderQueryService {
	return &orderQueryService{
		logger:    logger,
		orderRepo: orderRepo,
	}
}

func (s *orderQueryService) GetOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Warn("order not found", zap.Int64("order_id", orderID))
			return nil, err
		}

		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return order, nil
}

func (s *orderQueryService) ListUserOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.orderRepo.ListByUser(ctx, userID)
}

func (s *orderQueryService) ListSellerOrders(ctx context.Context, sellerID int64) ([]domain.Order, error) {
	return s.orderRepo.ListBySeller(ctx, sellerID)
}
