package service_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/repository"
	"github.com/bibekshah220/app-server/internal/service"
	pkgKafka "github.com/bibekshah220/app-server/pkg/kafka"
	outboxRepository "github.com/bibekshah220/app-server/pkg/outbox/repository"
	"github.com/bibekshah220/app-server/pkg/outbox/worker"
	"github.com/bibekshah220/app-server/pkg/testsuite"
)

type IntegrationTestSuite struct {
	testsuite.BaseSuite

	CheckoutService   service.CheckoutService
	SettlementService service.SettlementService
	WalletService     service.WalletService

	TestProducer    pkgKafka.Producer
	OutboxProcessor *worker.OutboxProcessor
	workerCancel    context.CancelFunc

	payout *fakePayoutClient
}

// fakePayoutClient stands in for the external disbursement provider and
// counts how many payouts actually left the platform.
type fakePayoutClient struct {
	mu       sync.Mutex
	calls    int
	failWith error
}

func (c *fakePayoutClient) RequestPayout(_ context.Context, _, _ int64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.failWith != nil {
		return "", c.failWith
	}

	return "payout-test-ref", nil
}

func (c *fakePayoutClient) payoutCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func (c *fakePayoutClient) rejectWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failWith = err
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.BaseSuite.SetupInfrastructure("../../migrations")
}

func (s *IntegrationTestSuite) TearDownSuite() {
	s.BaseSuite.TearDownInfrastructure()
}

func (s *IntegrationTestSuite) SetupTest() {
	s.BaseSuite.TruncateTable("sellers")
	s.BaseSuite.TruncateTable("outbox")
	s.BaseSuite.TruncateTable("processed_events")

	logger := zap.NewNop()

	productRepo := repository.NewProductRepository(s.DbPool, logger)
	orderRepo := repository.NewOrderRepository(s.DbPool, logger)
	walletRepo := repository.NewWalletRepository(s.DbPool, logger)
	txRepo := repository.NewTransactionRepository(s.DbPool, logger)
	sellerRepo := repository.NewSellerRepository(s.DbPool, logger)
	outboxRepo := outboxRepository.NewOutboxRepository(s.DbPool, logger)

	var err error
	s.TestProducer, err = pkgKafka.NewProducer(s.KafkaBrokers)
	s.Require().NoError(err, "failed to create kafka producer")

	s.CheckoutService = service.NewCheckoutService(s.DbPool, logger, productRepo, orderRepo, outboxRepo, "order_events")
	s.SettlementService = service.NewSettlementService(
		s.DbPool, logger, orderRepo, walletRepo, txRepo, sellerRepo, productRepo, outboxRepo, "order_events",
	)
	s.payout = &fakePayoutClient{}
	s.WalletService = service.NewWalletService(s.DbPool, logger, walletRepo, txRepo, s.payout)

	s.OutboxProcessor = worker.NewOutboxProcessor(s.DbPool, outboxRepo, s.TestProducer, logger)

	workerCtx, cancel := context.WithCancel(s.Ctx)
	s.workerCancel = cancel

	go s.OutboxProcessor.Start(workerCtx)
}

func (s *IntegrationTestSuite) TearDownTest() {
	if s.workerCancel != nil {
		s.workerCancel()
	}
}

func (s *IntegrationTestSuite) seedSeller(id, userID, commissionRate int64) {
	query := `
		INSERT INTO sellers (id, user_id, business_name, commission_rate, status)
		VALUES ($1, $2, $3, $4, 'verified')
	`

	_, err := s.DbPool.Exec(s.Ctx, query, id, userID, "Test Shop", commissionRate)
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) seedProduct(id, sellerID, price, stock int64) {
	query := `
		INSERT INTO products (id, seller_id, name, price, stock_quantity)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.DbPool.Exec(s.Ctx, query, id, sellerID, "Test Product", price, stock)
	s.Require().NoError(err)
}

func (s *IntegrationTestSuite) stockOf(productID int64) int64 {
	var stock int64
	err := s.DbPool.QueryRow(s.Ctx, "SELECT stock_quantity FROM products WHERE id = $1", productID).Scan(&stock)
	s.Require().NoError(err)

	return stock
}

func (s *IntegrationTestSuite) walletOf(sellerID int64) *domain.Wallet {
	var w domain.Wallet
	err := s.DbPool.QueryRow(
		s.Ctx,
		`SELECT id, seller_id, balance, escrow_balance, total_earnings, total_commission_paid
		 FROM wallets WHERE seller_id = $1`,
		sellerID,
	).Scan(&w.ID, &w.SellerID, &w.Balance, &w.EscrowBalance, &w.TotalEarnings, &w.TotalCommissionPaid)
	s.Require().NoError(err)

	return &w
}

func (s *IntegrationTestSuite) orderCount() int64 {
	var count int64
	err := s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM orders").Scan(&count)
	s.Require().NoError(err)

	return count
}

func (s *IntegrationTestSuite) transactionCount(orderID int64) int64 {
	var count int64
	err := s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM transactions WHERE order_id = $1", orderID).Scan(&count)
	s.Require().NoError(err)

	return count
}

func (s *IntegrationTestSuite) checkout(userID int64, lines ...service.CheckoutLine) []*domain.Order {
	orders, err := s.CheckoutService.Checkout(s.Ctx, &service.CheckoutRequest{
		UserID:        userID,
		PaymentMethod: "card",
		Shipping: domain.ShippingAddress{
			Street: "12 Market St",
			City:   "Kathmandu",
			State:  "Bagmati",
			Zip:    "44600",
			Phone:  "+9779800000000",
		},
		Lines: lines,
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(orders)

	return orders
}

func TestIntegrationSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}
