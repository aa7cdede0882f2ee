package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

// ===================== StockLevel Tests =====================

func TestStockLevel_Bands(t *testing.T) {
	cases := []struct {
		name      string
		current   int
		preferred int
		want      StockLevel
	}{
		{"empty", 0, 4, StockCritical},
		{"quarter is critical", 1, 4, StockCritical},
		{"half is low", 2, 4, StockLow},
		{"three quarters is medium", 3, 4, StockMedium},
		{"full is good", 4, 4, StockGood},
		{"overstock is good", 9, 4, StockGood},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := InventoryItem{ProductID: "p1", CurrentQuantity: tc.current, PreferredQuantity: tc.preferred}
			assert.Equal(t, tc.want, item.StockLevel())
		})
	}
}

func TestNeedsReorder_AtThreshold(t *testing.T) {
	item := InventoryItem{ProductID: "p1", CurrentQuantity: 2, PreferredQuantity: 6, ReorderThreshold: 2}
	assert.True(t, item.NeedsReorder())

	item.CurrentQuantity = 3
	assert.False(t, item.NeedsReorder())
}

// ===================== EstimatedRunOutDate Tests =====================

func TestEstimatedRunOutDate_NoConsumptionData(t *testing.T) {
	item := InventoryItem{ProductID: "p1", CurrentQuantity: 2, PreferredQuantity: 4}

	assert.Nil(t, item.EstimatedRunOutDate(time.Now()))
}

func TestEstimatedRunOutDate_FromLastPurchase(t *testing.T) {
	// Arrange
	purchased := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	item := InventoryItem{
		ProductID:              "p1",
		CurrentQuantity:        1,
		PreferredQuantity:      4,
		AverageConsumptionDays: intPtr(30),
		LastPurchaseDate:       &purchased,
	}

	// Act
	runOut := item.EstimatedRunOutDate(now)

	// Assert
	require.NotNil(t, runOut)
	assert.Equal(t, time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC), *runOut)
}

func TestEstimatedRunOutDate_FromCurrentStock(t *testing.T) {
	// floor(1 * 30 / 4) = 7 дней от now
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	item := InventoryItem{
		ProductID:              "p1",
		CurrentQuantity:        1,
		PreferredQuantity:      4,
		AverageConsumptionDays: intPtr(30),
	}

	runOut := item.EstimatedRunOutDate(now)

	require.NotNil(t, runOut)
	assert.Equal(t, now.AddDate(0, 0, 7), *runOut)
}

func TestEstimatedRunOutDate_PathsDiffer(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	purchased := now.AddDate(0, 0, -2)
	withPurchase := InventoryItem{ProductID: "p1", CurrentQuantity: 4, PreferredQuantity: 4, AverageConsumptionDays: intPtr(10), LastPurchaseDate: &purchased}
	withoutPurchase := withPurchase
	withoutPurchase.LastPurchaseDate = nil

	assert.Equal(t, now.AddDate(0, 0, 8), *withPurchase.EstimatedRunOutDate(now))
	assert.Equal(t, now.AddDate(0, 0, 10), *withoutPurchase.EstimatedRunOutDate(now))
}

func TestInventoryItemValidate(t *testing.T) {
	valid := InventoryItem{ProductID: "p1", CurrentQuantity: 0, PreferredQuantity: 1}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.PreferredQuantity = 0
	assert.ErrorIs(t, bad.Validate(), ErrInvalidQuantity)

	bad = valid
	bad.CurrentQuantity = -1
	assert.ErrorIs(t, bad.Validate(), ErrInvalidInput)

	bad = valid
	bad.ProductID = ""
	assert.ErrorIs(t, bad.Validate(), ErrMissingProduct)
}
