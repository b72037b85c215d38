package service_test

import (
	"errors"
	"sync"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/service"
)

func (s *IntegrationTestSuite) TestGetWallet_LazyCreation() {
	s.seedSeller(1, 100, 10)

	wallet, err := s.WalletService.GetWallet(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), wallet.SellerID)
	s.Require().Equal(int64(0), wallet.Balance)
	s.Require().Equal(int64(0), wallet.EscrowBalance)

	again, err := s.WalletService.GetWallet(s.Ctx, 1)
	s.Require().NoError(err)
	s.Require().Equal(wallet.ID, again.ID)
}

func (s *IntegrationTestSuite) TestListTransactions_Pagination() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))

	// credit + escrow_release + commission
	transactions, total, err := s.WalletService.ListTransactions(s.Ctx, 1, 2, 0)
	s.Require().NoError(err)
	s.Require().Equal(int64(3), total)
	s.Require().Len(transactions, 2)

	rest, total, err := s.WalletService.ListTransactions(s.Ctx, 1, 2, 2)
	s.Require().NoError(err)
	s.Require().Equal(int64(3), total)
	s.Require().Len(rest, 1)
}

func (s *IntegrationTestSuite) TestWithdraw_InsufficientBalance() {
	s.seedSeller(1, 100, 10)

	_, err := s.WalletService.Withdraw(s.Ctx, 1, 500)
	s.Require().ErrorIs(err, domain.ErrInsufficientBalance)

	var count int64
	err = s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM transactions WHERE type = 'withdrawal'").Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(int64(0), count)
	s.Require().Equal(0, s.payout.payoutCount())
}

func (s *IntegrationTestSuite) TestWithdraw_EscrowNotWithdrawable() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orders[0].ID, "pay-ref-1"))

	// Held funds are not spendable until the order is delivered.
	_, err := s.WalletService.Withdraw(s.Ctx, 1, 1000)
	s.Require().ErrorIs(err, domain.ErrInsufficientBalance)
}

func (s *IntegrationTestSuite) TestWithdraw_Success() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))

	transaction, err := s.WalletService.Withdraw(s.Ctx, 1, 500)
	s.Require().NoError(err)
	s.Require().Equal(domain.TransactionWithdrawal, transaction.Type)
	s.Require().Equal(int64(500), transaction.Amount)
	s.Require().Equal(domain.TransactionCompleted, transaction.Status)
	s.Require().Equal("payout-test-ref", transaction.GatewayRef)

	var status, gatewayRef string
	err = s.DbPool.QueryRow(
		s.Ctx,
		"SELECT status, gateway_ref FROM transactions WHERE id = $1",
		transaction.ID,
	).Scan(&status, &gatewayRef)
	s.Require().NoError(err)
	s.Require().Equal("completed", status)
	s.Require().Equal("payout-test-ref", gatewayRef)

	wallet := s.walletOf(1)
	s.Require().Equal(int64(400), wallet.Balance)
}

// Two withdrawals racing for the same funds must trigger exactly one payout:
// the balance is debited before the gateway is called, so the loser fails
// the conditional debit and never reaches the gateway.
func (s *IntegrationTestSuite) TestWithdraw_ConcurrentSinglePayout() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))
	s.Require().Equal(int64(900), s.walletOf(1).Balance)

	var wg sync.WaitGroup
	errs := make([]error, 2)

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.WalletService.Withdraw(s.Ctx, 1, 500)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Require().ErrorIs(err, domain.ErrInsufficientBalance)
		}
	}
	s.Require().Equal(1, succeeded)
	s.Require().Equal(1, s.payout.payoutCount())

	s.Require().Equal(int64(400), s.walletOf(1).Balance)

	var count int64
	err := s.DbPool.QueryRow(s.Ctx, "SELECT COUNT(*) FROM transactions WHERE type = 'withdrawal'").Scan(&count)
	s.Require().NoError(err)
	s.Require().Equal(int64(1), count)
}

func (s *IntegrationTestSuite) TestWithdraw_GatewayRejectionCompensates() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 2})
	orderID := orders[0].ID

	s.Require().NoError(s.SettlementService.HoldFunds(s.Ctx, orderID, "pay-ref-1"))
	s.Require().NoError(s.SettlementService.UpdateOrderStatus(s.Ctx, orderID, domain.OrderStatusDelivered))

	s.payout.rejectWith(errors.New("gateway unavailable"))

	_, err := s.WalletService.Withdraw(s.Ctx, 1, 500)
	s.Require().Error(err)

	// The debited funds came back and the ledger kept the failed attempt.
	s.Require().Equal(int64(900), s.walletOf(1).Balance)

	var status string
	err = s.DbPool.QueryRow(
		s.Ctx,
		"SELECT status FROM transactions WHERE type = 'withdrawal'",
	).Scan(&status)
	s.Require().NoError(err)
	s.Require().Equal("failed", status)
}
