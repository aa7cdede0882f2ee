package service

import (
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryBook_ReorderEdgeTriggered(t *testing.T) {
	// Arrange
	book := NewInventoryBook(newRules())
	require.NoError(t, book.Add(entity.InventoryItem{ProductID: "p1", CurrentQuantity: 3, PreferredQuantity: 4, ReorderThreshold: 1}))
	assert.Empty(t, book.Evaluate(baseTime))

	// Act: падение до порога, затем несколько тиков без изменений
	_, err := book.RecordConsumption("p1", 2)
	require.NoError(t, err)
	first := book.Evaluate(baseTime.Add(time.Minute))
	second := book.Evaluate(baseTime.Add(2 * time.Minute))
	third := book.Evaluate(baseTime.Add(3 * time.Minute))

	// Assert
	assert.Len(t, first, 1)
	assert.Empty(t, second)
	assert.Empty(t, third)

	// Пополнение и повторное падение дает новое оповещение
	_, err = book.RecordPurchase("p1", 3, baseTime.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, book.Evaluate(baseTime.Add(5*time.Minute)))
	_, err = book.RecordConsumption("p1", 3)
	require.NoError(t, err)
	assert.Len(t, book.Evaluate(baseTime.Add(6*time.Minute)), 1)
}

func TestInventoryBook_AddedBelowThresholdFiresOnce(t *testing.T) {
	book := NewInventoryBook(newRules())
	require.NoError(t, book.Add(entity.InventoryItem{ProductID: "p1", CurrentQuantity: 0, PreferredQuantity: 4, ReorderThreshold: 1}))

	assert.Len(t, book.Evaluate(baseTime), 1)
	assert.Empty(t, book.Evaluate(baseTime.Add(time.Minute)))
}

func TestInventoryBook_ConsumptionAboveStockRejected(t *testing.T) {
	book := NewInventoryBook(newRules())
	require.NoError(t, book.Add(entity.InventoryItem{ProductID: "p1", CurrentQuantity: 2, PreferredQuantity: 4}))

	_, err := book.RecordConsumption("p1", 3)

	assert.ErrorIs(t, err, entity.ErrInvalidQuantity)
	item, _ := book.Get("p1")
	assert.Equal(t, 2, item.CurrentQuantity)
}

func TestInventoryBook_PurchaseSetsLastPurchaseDate(t *testing.T) {
	book := NewInventoryBook(newRules())
	require.NoError(t, book.Add(entity.InventoryItem{ProductID: "p1", CurrentQuantity: 1, PreferredQuantity: 4, AverageConsumptionDays: intPtr(20)}))

	item, err := book.RecordPurchase("p1", 3, baseTime)

	require.NoError(t, err)
	assert.Equal(t, 4, item.CurrentQuantity)
	require.NotNil(t, item.LastPurchaseDate)
	assert.Equal(t, baseTime.AddDate(0, 0, 20), *item.EstimatedRunOutDate(baseTime.Add(time.Hour)))
}

func TestInventoryBook_Errors(t *testing.T) {
	book := NewInventoryBook(newRules())

	assert.ErrorIs(t, book.Add(entity.InventoryItem{ProductID: "p1", PreferredQuantity: 0}), entity.ErrInvalidQuantity)

	_, err := book.RecordPurchase("missing", 1, baseTime)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	_, err = book.RecordConsumption("missing", 1)
	assert.ErrorIs(t, err, entity.ErrNotFound)

	require.NoError(t, book.Add(entity.InventoryItem{ProductID: "p1", CurrentQuantity: 1, PreferredQuantity: 1}))
	_, err = book.RecordPurchase("p1", 0, baseTime)
	assert.ErrorIs(t, err, entity.ErrInvalidQuantity)
}

func TestInventoryBook_ListSorted(t *testing.T) {
	book := NewInventoryBook(newRules())
	require.NoError(t, book.Add(entity.InventoryItem{ProductID: "b", CurrentQuantity: 1, PreferredQuantity: 1}))
	require.NoError(t, book.Add(entity.InventoryItem{ProductID: "a", CurrentQuantity: 1, PreferredQuantity: 1}))

	items := book.List()

	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ProductID)
	assert.Equal(t, "b", items[1].ProductID)
}
