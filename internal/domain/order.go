package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// Order is always single-seller: checkout splits a mixed cart into one
// order per seller before anything is persisted.
type Order struct {
	ID            int64         `db:"id"`
	UserID        int64         `db:"user_id"`
	SellerID      int64         `db:"seller_id"`
	Items         []OrderItem   `db:"items"`
	TotalAmount   int64         `db:"total_amount"`
	Status        OrderStatus   `db:"status"`
	PaymentStatus PaymentStatus `db:"payment_status"`
	PaymentRef    string        `db:"payment_ref"`
	PaymentMethod string        `db:"payment_method"`
	Shipping      ShippingAddress

	ShippedAt        *time.Time `db:"shipped_at"`
	DeliveredAt      *time.Time `db:"delivered_at"`
	EscrowReleasedAt *time.Time `db:"escrow_released_at"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OrderItem keeps a snapshot of name and price taken at checkout time.
// TotalAmount is computed from these snapshots and never recomputed from
// the live catalog.
type OrderItem struct {
	ID        int64  `db:"id"`
	OrderID   int64  `db:"order_id"`
	ProductID int64  `db:"product_id"`
	Name      string `db:"name"`
	Price     int64  `db:"price"`
	Quantity  int32  `db:"quantity"`
}

type ShippingAddress struct {
	Street string `db:"shipping_street" json:"street"`
	City   string `db:"shipping_city" json:"city"`
	State  string `db:"shipping_state" json:"state"`
	Zip    string `db:"shipping_zip" json:"zip"`
	Phone  string `db:"shipping_phone" json:"phone"`
}

func (o *Order) CalculateTotal() {
	var total int64
	for _, item := range o.Items {
		total += item.Price * int64(item.Quantity)
	}
	o.TotalAmount = total
}
