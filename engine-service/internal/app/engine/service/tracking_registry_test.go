package service

import (
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackingRegistry_StartAndStop(t *testing.T) {
	// Arrange
	clock := newFakeClock(baseTime)
	registry := NewTrackingRegistry(5, clock.Now)

	// Act
	item, err := registry.Start("p1", floatPtr(199), "key-1")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.True(t, item.Active)
	assert.Equal(t, baseTime, item.CreatedAt)
	assert.True(t, registry.IsTracked("p1"))

	stopped, err := registry.Stop(item.ID)
	require.NoError(t, err)
	assert.False(t, stopped.Active)
	assert.False(t, registry.IsTracked("p1"))
	assert.Empty(t, registry.Active())
	assert.Len(t, registry.All(), 1)
}

func TestTrackingRegistry_StartTwiceReusesItem(t *testing.T) {
	registry := NewTrackingRegistry(5, nil)
	first, err := registry.Start("p1", nil, "")
	require.NoError(t, err)
	_, err = registry.Stop(first.ID)
	require.NoError(t, err)

	second, err := registry.Start("p1", floatPtr(10), "k")

	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Active)
	assert.Equal(t, 10.0, *second.TargetPrice)
	assert.Len(t, registry.All(), 1)
}

func TestTrackingRegistry_Validation(t *testing.T) {
	registry := NewTrackingRegistry(5, nil)

	_, err := registry.Start("p1", floatPtr(0), "")
	assert.ErrorIs(t, err, entity.ErrInvalidTarget)

	_, err = registry.Start("", nil, "")
	assert.ErrorIs(t, err, entity.ErrInvalidInput)

	_, err = registry.Stop("missing")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestTrackingRegistry_MarkCheckedKeepsBoundedCopy(t *testing.T) {
	registry := NewTrackingRegistry(2, nil)
	item, _ := registry.Start("p1", nil, "")

	history := []entity.PricePoint{
		price("p1", 1, baseTime),
		price("p1", 2, baseTime.Add(time.Minute)),
		price("p1", 3, baseTime.Add(2*time.Minute)),
	}
	registry.MarkChecked("p1", baseTime.Add(time.Hour), history)
	history[2].Price = 999

	got, ok := registry.Get(item.ID)
	require.True(t, ok)
	require.Len(t, got.History, 2)
	assert.Equal(t, 2.0, got.History[0].Price)
	assert.Equal(t, 3.0, got.History[1].Price)
	require.NotNil(t, got.LastChecked)
	assert.Equal(t, baseTime.Add(time.Hour), *got.LastChecked)

	got.History[0].Price = 42
	again, _ := registry.Get(item.ID)
	assert.Equal(t, 2.0, again.History[0].Price)
}
