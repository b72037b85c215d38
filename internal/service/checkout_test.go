package service_test

import (
	"fmt"
	"sync"
	"time"

	"github.com/bibekshah220/app-server/internal/domain"
	"github.com/bibekshah220/app-server/internal/service"
)

func (s *IntegrationTestSuite) TestCheckout_SplitsCartPerSeller() {
	s.seedSeller(1, 100, 10)
	s.seedSeller(2, 200, 10)
	s.seedProduct(10, 1, 500, 5)
	s.seedProduct(11, 2, 300, 5)
	s.seedProduct(12, 1, 200, 5)

	orders := s.checkout(999,
		service.CheckoutLine{ProductID: 10, Quantity: 2},
		service.CheckoutLine{ProductID: 11, Quantity: 1},
		service.CheckoutLine{ProductID: 12, Quantity: 3},
	)

	s.Require().Len(orders, 2)

	// Groups follow the first appearance of each seller in the cart.
	s.Require().Equal(int64(1), orders[0].SellerID)
	s.Require().Equal(int64(2), orders[1].SellerID)

	s.Require().Equal(int64(2*500+3*200), orders[0].TotalAmount)
	s.Require().Equal(int64(300), orders[1].TotalAmount)

	s.Require().Len(orders[0].Items, 2)
	s.Require().Len(orders[1].Items, 1)
	s.Require().Equal("Test Product", orders[0].Items[0].Name)

	s.Require().Equal(int64(3), s.stockOf(10))
	s.Require().Equal(int64(4), s.stockOf(11))
	s.Require().Equal(int64(2), s.stockOf(12))

	for _, o := range orders {
		s.Require().Equal(domain.OrderStatusPending, o.Status)
		s.Require().Equal(domain.PaymentStatusPending, o.PaymentStatus)
	}
}

func (s *IntegrationTestSuite) TestCheckout_PublishesOrderCreatedEvents() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	orders := s.checkout(999, service.CheckoutLine{ProductID: 10, Quantity: 1})
	s.Require().Len(orders, 1)
	aggregateID := fmt.Sprintf("%d", orders[0].ID)

	s.Require().Eventually(func() bool {
		var publishedAt *time.Time
		err := s.DbPool.QueryRow(
			s.Ctx,
			"SELECT published_at FROM outbox WHERE aggregate_id = $1 AND event_type = 'OrderCreated'",
			aggregateID,
		).Scan(&publishedAt)

		return err == nil && publishedAt != nil
	}, 5*time.Second, 100*time.Millisecond)
}

func (s *IntegrationTestSuite) TestCheckout_UnknownProduct() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	_, err := s.CheckoutService.Checkout(s.Ctx, &service.CheckoutRequest{
		UserID:        999,
		PaymentMethod: "card",
		Shipping:      domain.ShippingAddress{Street: "a", City: "b", State: "c", Zip: "d", Phone: "e"},
		Lines: []service.CheckoutLine{
			{ProductID: 10, Quantity: 1},
			{ProductID: 777, Quantity: 1},
		},
	})
	s.Require().ErrorIs(err, domain.ErrProductNotFound)
	s.Require().Equal(int64(0), s.orderCount())
	s.Require().Equal(int64(5), s.stockOf(10))
}

func (s *IntegrationTestSuite) TestCheckout_RejectsInvalidLines() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 5)

	_, err := s.CheckoutService.Checkout(s.Ctx, &service.CheckoutRequest{
		UserID:        999,
		PaymentMethod: "card",
		Shipping:      domain.ShippingAddress{Street: "a", City: "b", State: "c", Zip: "d", Phone: "e"},
		Lines:         []service.CheckoutLine{{ProductID: 10, Quantity: 0}},
	})
	s.Require().ErrorIs(err, domain.ErrValidation)

	_, err = s.CheckoutService.Checkout(s.Ctx, &service.CheckoutRequest{
		UserID:        999,
		PaymentMethod: "card",
		Shipping:      domain.ShippingAddress{Street: "a", City: "b", State: "c", Zip: "d", Phone: "e"},
		Lines:         nil,
	})
	s.Require().ErrorIs(err, domain.ErrValidation)

	s.Require().Equal(int64(0), s.orderCount())
	s.Require().Equal(int64(5), s.stockOf(10))
}

func (s *IntegrationTestSuite) TestCheckout_AllOrNothing() {
	s.seedSeller(1, 100, 10)
	s.seedSeller(2, 200, 10)
	s.seedProduct(10, 1, 500, 5)
	s.seedProduct(11, 2, 300, 1)

	_, err := s.CheckoutService.Checkout(s.Ctx, &service.CheckoutRequest{
		UserID:        999,
		PaymentMethod: "card",
		Shipping:      domain.ShippingAddress{Street: "a", City: "b", State: "c", Zip: "d", Phone: "e"},
		Lines: []service.CheckoutLine{
			{ProductID: 10, Quantity: 2},
			{ProductID: 11, Quantity: 3},
		},
	})
	s.Require().ErrorIs(err, domain.ErrInsufficientStock)

	// The first seller's reservation rolled back with the rest.
	s.Require().Equal(int64(0), s.orderCount())
	s.Require().Equal(int64(5), s.stockOf(10))
	s.Require().Equal(int64(1), s.stockOf(11))
}

func (s *IntegrationTestSuite) TestCheckout_ConcurrentLastUnit() {
	s.seedSeller(1, 100, 10)
	s.seedProduct(10, 1, 500, 1)

	const buyers = 5

	var wg sync.WaitGroup
	errs := make([]error, buyers)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, errs[i] = s.CheckoutService.Checkout(s.Ctx, &service.CheckoutRequest{
				UserID:        int64(1000 + i),
				PaymentMethod: "card",
				Shipping:      domain.ShippingAddress{Street: "a", City: "b", State: "c", Zip: "d", Phone: "e"},
				Lines:         []service.CheckoutLine{{ProductID: 10, Quantity: 1}},
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.Require().ErrorIs(err, domain.ErrInsufficientStock)
		}
	}

	s.Require().Equal(1, succeeded)
	s.Require().Equal(int64(0), s.stockOf(10))
	s.Require().Equal(int64(1), s.orderCount())
}
