package service

import (
	"github.com/bibekshah220/app-server/internal/domain"
)

// CheckoutLine is one row of the buyer's cart as submitted.
type CheckoutLine struct {
	ProductID int64
	Quantity  int32
}

type sellerGroup struct {
	SellerID int64
	Items    []domain.OrderItem
}

// splitBySeller partitions cart lines into one group per seller. Groups are
// ordered by the first appearance of each seller in the cart, and lines keep
// their submitted order inside a group. Lines repeating a product are merged
// into a single item. Every product id must be present in products.
func splitBySeller(lines []CheckoutLine, products map[int64]*domain.Product) []sellerGroup {
	var order []int64
	groups := make(map[int64]*sellerGroup)
	itemIdx := make(map[int64]map[int64]int)

	for _, line := range lines {
		p := products[line.ProductID]

		g, ok := groups[p.SellerID]
		if !ok {
			g = &sellerGroup{SellerID: p.SellerID}
			groups[p.SellerID] = g
			itemIdx[p.SellerID] = make(map[int64]int)
			order = append(order, p.SellerID)
		}

		if idx, seen := itemIdx[p.SellerID][line.ProductID]; seen {
			g.Items[idx].Quantity += line.Quantity
			continue
		}

		itemIdx[p.SellerID][line.ProductID] = len(g.Items)
		g.Items = append(g.Items, domain.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
		})
	}

	result := make([]sellerGroup, 0, len(order))
	for _, sellerID := range order {
		result = append(result, *groups[sellerID])
	}

	return result
}
