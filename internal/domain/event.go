package domain

import "time"

// Events consumed from and published to Kafka. PaymentSucceeded and
// PaymentFailed arrive from the payment gateway side; the rest are emitted
// through the transactional outbox.

type PaymentSucceededEvent struct {
	OrderID    int64     `json:"order_id"`
	PaymentRef string    `json:"payment_ref"`
	Amount     int64     `json:"amount"`
	PaidAt     time.Time `json:"paid_at"`
}

type PaymentFailedEvent struct {
	OrderID  int64     `json:"order_id"`
	Amount   int64     `json:"amount"`
	FailedAt time.Time `json:"failed_at"`
}

type OrderCreatedEvent struct {
	OrderID     int64       `json:"order_id"`
	UserID      int64       `json:"user_id"`
	SellerID    int64       `json:"seller_id"`
	TotalAmount int64       `json:"total_amount"`
	Items       []OrderItem `json:"items"`
}

type OrderCancelledEvent struct {
	OrderID int64       `json:"order_id"`
	Items   []OrderItem `json:"items"`
}

type EscrowReleasedEvent struct {
	OrderID    int64 `json:"order_id"`
	SellerID   int64 `json:"seller_id"`
	Amount     int64 `json:"amount"`
	Commission int64 `json:"commission"`
	Earnings   int64 `json:"earnings"`
}
