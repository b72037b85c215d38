package domain

import "time"

type ProductStatus string

const (
	ProductStatusActive   ProductStatus = "active"
	ProductStatusInactive ProductStatus = "inactive"
)

type Product struct {
	ID            int64         `db:"id"`
	SellerID      int64         `db:"seller_id"`
	Name          string        `db:"name"`
	Description   string        `db:"description"`
	Price         int64         `db:"price"`
	StockQuantity int64         `db:"stock_quantity"`
	ImageUrl      string        `db:"image_url"`
	Category      string        `db:"category"`
	Status        ProductStatus `db:"status"`
	CreatedAt     time.Time     `db:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at"`
	DeletedAt     *time.Time    `db:"deleted_at" json:"-"`
}
