package domain

import "time"

type SellerStatus string

const (
	SellerStatusPending   SellerStatus = "pending"
	SellerStatusVerified  SellerStatus = "verified"
	SellerStatusSuspended SellerStatus = "suspended"
)

// Seller is the registry entry the settlement service reads the commission
// rate from. The rate is read at release time, not at order time.
type Seller struct {
	ID             int64        `db:"id"`
	UserID         int64        `db:"user_id"`
	BusinessName   string       `db:"business_name"`
	CommissionRate int64        `db:"commission_rate"`
	Status         SellerStatus `db:"status"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}
