package service_test

import (
	"fmt"
	"sync"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/service"
)

func (s *IntegrationTestSuite) TestHoldFunds_CreditsEscrow() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	err := s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1")
	s.Require().NoError(err)

	var status, paymentStatus, paymentRef string
	err = s.DbPool.QueryRow(
		s.Ctx,
		"SELECT status, payment_status, payment_ref FROM orders WHERE id = $1",
		orderID,
	).Scan(&status, &paymentStatus, &paymentRef)
	s.Require().NoError(err)
	s.Require().Equal("paid", status)
	s.Require().Equal("paid", paymentStatus)
	s.Require().Equal("pay-ref-1", paymentRef)

	wallet := s.walletOf(1)
	s.Require().Equal(int64(1000), wallet.EscrowBalance)
	s.Require().Equal(int64(0), wallet.Balance)

	s.Require().Equal(int64(1), s.transactionCount(orderID))
}

func (s *IntegrationTestSuite) TestHoldFunds_DuplicateCallback() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))

	err := s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-2")
	s.Require().ErrorIs(err, domain.ErrAlreadyHeld)

	wallet := s.walletOf(1)
	s.Require().Equal(int64(1000), wallet.EscrowBalance)
	s.Require().Equal(int64(1), s.transactionCount(orderID))
}

func (s *IntegrationTestSuite) TestHoldFunds_UnknownOrder() {
	err := s.SettlementService.HoldFunds(s.Ctx, 424242, "pay-ref-1")
	s.Require().ErrorIs(err, domain.ErrOrderNotFound)
}

// A late success callback for a cancelled order is not a duplicate: the funds
// were never escrowed and the caller has to refund the buyer.
func (s *IntegrationTestSuite) TestHoldFunds_CancelledOrder() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.CancelOrder(s.Ctx, orderID))

	err := s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-late")
	s.Require().ErrorIs(err, domain.ErrOrderCancelled)
	s.Require().NotErrorIs(err, domain.ErrAlreadyHeld)

	var count int64
	err = s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM transactions WHERE order_id = $1", orderID).Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(int64(0), count)
}

func (s *IntegrationTestSuite) TestRelease_SplitsEarningsAndCommission() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusShipped))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))

	wallet := s.walletOf(1)
	s.Require().Equal(int64(900), wallet.Balance)
	s.Require().Equal(int64(0), wallet.EscrowBalance)
	s.Require().Equal(int64(900), wallet.TotalEarnings)
	s.Require().Equal(int64(100), wallet.TotalCommissionPaid)

	var releaseAmount, commissionAmount int64
	err := s.DbPool.QueryRow(
		s.Ctx,
		"SELECT amount FROM transactions WHERE order_id = $1 AND type = 'escrow_release'",
		orderID,
	).Scan(&releaseAmount)
	s.Require().NoError(err)
	s.Require().Equal(int64(1000), releaseAmount)

	err = s.DbPool.QueryRow(
		s.Ctx,
		"SELECT amount FROM transactions WHERE order_id = $1 AND type = 'commission'",
		orderID,
	).Scan(&commissionAmount)
	s.Require().NoError(err)
	s.Require().Equal(int64(100), commissionAmount)

	var status string
	var releasedAt *string
	err = s.DbPool.QueryRow(
		s.Ctx,
		"SELECT status, escrow_released_at::text FROM orders WHERE id = $1",
		orderID,
	).Scan(&status, &releasedAt)
	s.Require().NoError(err)
	s.Require().Equal("delivered", status)
	s.Require().NotNil(releasedAt)
}

func (s *IntegrationTestSuite) TestRelease_UsesCurrentCommissionRate() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))

	// The rate changes between payment and delivery.
	_, err := s.DbPool.Exec(s.Ctx, "UPDATE sellers SET commission_rate = 20 WHERE id = 1")
	s.Require().NoError(err)

	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))

	wallet := s.walletOf(1)
	s.Require().Equal(int64(800), wallet.Balance)
	s.Require().Equal(int64(200), wallet.TotalCommissionPaid)
}

// Settlement events must not land on the payment topic the service itself
// consumes, or it would eat its own output.
func (s *IntegrationTestSuite) TestRelease_EmitsEventOnOrderTopic() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))

	var topic string
	err := s.DbPool.QueryRow(
		s.Ctx,
		"SELECT topic FROM outbox WHERE aggregate_id = $1 AND event_type = 'EscrowReleased'",
		fmt.Sprintf("%d", orderID),
	).Scan(&topic)
	s.Require().NoError(err)
	s.Require().Equal("order_events", topic)
}

func (s *IntegrationTestSuite) TestCancel_EmitsEventOnOrderTopic() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 1})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.CancelOrder(s.Ctx, orderID))

	var topic string
	err := s.DbPool.QueryRow(
		s.Ctx,
		"SELECT topic FROM outbox WHERE aggregate_id = $1 AND event_type = 'OrderCancelled'",
		fmt.Sprintf("%d", orderID),
	).Scan(&topic)
	s.Require().NoError(err)
	s.Require().Equal("order_events", topic)
}

func (s *IntegrationTestSuite) TestRelease_Duplicate() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))

	err := s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered)
	s.Require().ErrorIs(err, domain.ErrNotHeld)

	wallet := s.walletOf(1)
	s.Require().Equal(int64(900), wallet.Balance)
	s.Require().Equal(int64(0), wallet.EscrowBalance)
}

func (s *IntegrationTestSuite) TestRelease_Concurrent() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Require().ErrorIs(err, domain.ErrNotHeld)
		}
	}
	s.Require().Equal(1, succeeded)

	wallet := s.walletOf(1)
	s.Require().Equal(int64(900), wallet.Balance)
	s.Require().Equal(int64(0), wallet.EscrowBalance)
	s.Require().Equal(int64(100), wallet.TotalCommissionPaid)
}

func (s *IntegrationTestSuite) TestRelease_BeforePayment() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})

	err := s.SettlementService.UpdateOrderStatus(s.Ctx, orders[0].ID, domain.OrderStatusDelivered)
	s.Require().ErrorIs(err, domain.ErrNotHeld)
}

func (s *IntegrationTestSuite) TestMarkShipped_RequiresPaidOrder() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 1})

	err := s.SettlementService.UpdateOrderStatus(s.Ctx, orders[0].ID, domain.OrderStatusShipped)
	s.Require().ErrorIs(err, domain.ErrInvalidStatusTransition)
}

func (s *IntegrationTestSuite) TestCancel_RestocksPendingOrder() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 3})
	orderID := orders[0].ID
	s.Require().Equal(int64(2), s.stockOf(10))

	s.Require().NoError(s.SettlementService.CancelOrder(s.Ctx, orderID))

	s.Require().Equal(int64(5), s.stockOf(10))

	var status string
	err := s.DbPool.QueryRow(s.Ctx, "SELECT status FROM orders WHERE id = $1", orderID).Scan(&status)
	s.Require().NoError(err)
	s.Require().Equal("cancelled", status)
}

func (s *IntegrationTestSuite) TestCancel_PaidOrderRejected() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 1})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))

	err := s.SettlementService.CancelOrder(s.Ctx, orderID)
	s.Require().ErrorIs(err, domain.ErrOrderNotCancellable)
	s.Require().Equal(int64(4), s.stockOf(10))
}

// Full lifecycle: checkout, payment, shipping, delivery, withdrawal. Money in
// equals money out at every step.
func (s *IntegrationTestSuite) TestSettlement_EndToEnd() {
	s.seedSeller(1, 100, 10)
	s.seedSeller(2, 200, 25)
	s.seedProduct(10, 1, 500, 10)
	s.seedProduct(11, 2, 1000, 10)

	orders := s.checkout(999,
		service.CheckoutLine{ProductID: 10, Quantity: 2},
		service.CheckoutLine{ProductID: 11, Quantity: 1},
	)
	s.Require().Len(orders, 2)

	for _, o := range orders {
		s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, o.ID, "pay-ref-e2e"))
		s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, o.ID, domain.OrderStatusShipped))
		s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, o.ID, domain.OrderStatusDelivered))
	}

	first := s.walletOf(1)
	s.Require().Equal(int64(900), first.Balance)
	s.Require().Equal(int64(100), first.TotalCommissionPaid)

	second := s.walletOf(2)
	s.Require().Equal(int64(750), second.Balance)
	s.Require().Equal(int64(250), second.TotalCommissionPaid)

	for _, w := range []*domain.Wallet{first, second} {
		s.Require().Equal(int64(0), w.EscrowBalance)
		s.Require().Equal(w.Balance, w.TotalEarnings)
	}
}
