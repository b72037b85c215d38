package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bibekshah220/app-server/internal/domain"
)

func catalog() map[int64]*domain.Product {
	return map[int64]*domain.Product{
		10: {ID: 10, SellerID: 1, Name: "Keyboard", Price: 500},
		11: {ID: 11, SellerID: 2, Name: "Mouse", Price: 300},
		12: {ID: 12, SellerID: 1, Name: "Monitor", Price: 200},
	}
}

func TestSplitBySeller_GroupsByFirstAppearance(t *testing.T) {
	groups := splitBySeller([]CheckoutLine{
		{ProductID: 11, Quantity: 1},
		{ProductID: 10, Quantity: 2},
		{ProductID: 12, Quantity: 1},
	}, catalog())

	require.Len(t, groups, 2)
	require.Equal(t, int64(2), groups[0].SellerID)
	require.Equal(t, int64(1), groups[1].SellerID)

	require.Len(t, groups[1].Items, 2)
	require.Equal(t, int64(10), groups[1].Items[0].ProductID)
	require.Equal(t, int64(12), groups[1].Items[1].ProductID)
}

func TestSplitBySeller_MergesDuplicateLines(t *testing.T) {
	groups := splitBySeller([]CheckoutLine{
		{ProductID: 10, Quantity: 1},
		{ProductID: 11, Quantity: 1},
		{ProductID: 10, Quantity: 2},
	}, catalog())

	require.Len(t, groups, 2)
	require.Len(t, groups[0].Items, 1)
	require.Equal(t, int32(3), groups[0].Items[0].Quantity)
}

func TestSplitBySeller_SnapshotsNameAndPrice(t *testing.T) {
	groups := splitBySeller([]CheckoutLine{
		{ProductID: 10, Quantity: 1},
	}, catalog())

	require.Len(t, groups, 1)
	item := groups[0].Items[0]
	require.Equal(t, "Keyboard", item.Name)
	require.Equal(t, int64(500), item.Price)
}

func TestSplitBySeller_SingleSeller(t *testing.T) {
	groups := splitBySeller([]CheckoutLine{
		{ProductID: 10, Quantity: 1},
		{ProductID: 12, Quantity: 4},
	}, catalog())

	require.Len(t, groups, 1)
	require.Equal(t, int64(1), groups[0].SellerID)
	require.Len(t, groups[0].Items, 2)
}
