package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDealAlert_ComputesDiscountAndExpiry(t *testing.T) {
	// Arrange
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	point := PricePoint{ID: "pp1", ProductID: "p1", RetailerID: "r1", Price: 199.99, Timestamp: at}

	// Act
	alert := NewDealAlert(point, 249.99, 48*time.Hour)

	// Assert
	assert.Equal(t, AlertKindDeal, alert.Kind())
	assert.Equal(t, 20.0, alert.DiscountPercentage)
	assert.Equal(t, 50.0, alert.Savings)
	require.NotNil(t, alert.ExpiresAt)
	assert.Equal(t, at.Add(48*time.Hour), *alert.ExpiresAt)
	assert.False(t, alert.Expired(at.Add(47*time.Hour)))
	assert.True(t, alert.Expired(at.Add(48*time.Hour)))
}

func TestAlertID_IsDeterministic(t *testing.T) {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	point := PricePoint{ProductID: "p1", RetailerID: "r1", Price: 10, Timestamp: at}

	first := NewDealAlert(point, 20, 0)
	second := NewDealAlert(point, 20, 0)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.DedupeKey(), second.DedupeKey())
	assert.Nil(t, first.ExpiresAt)
}

func TestBudgetAlert_DedupeKeyPerPeriod(t *testing.T) {
	period := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	a := NewBudgetAlert("", 80, 820, 1000, 0, period, period.Add(time.Hour))
	b := NewBudgetAlert("", 80, 850, 1000, 0, period, period.Add(2*time.Hour))
	next := NewBudgetAlert("", 80, 820, 1000, 1, period.AddDate(0, 1, 0), period.AddDate(0, 1, 1))
	category := NewBudgetAlert(CategoryGroceries, 100, 300, 300, 0, period, period)

	assert.Equal(t, a.DedupeKey(), b.DedupeKey())
	assert.NotEqual(t, a.DedupeKey(), next.DedupeKey())
	assert.Contains(t, category.DedupeKey(), "groceries")

	rolled := NewBudgetAlert("", 80, 820, 1000, 1, period, period.Add(3*time.Hour))
	assert.NotEqual(t, a.DedupeKey(), rolled.DedupeKey())
	assert.Empty(t, category.ProductRef())
}

func TestCategoryValid(t *testing.T) {
	assert.True(t, CategoryPersonalCare.Valid())
	assert.False(t, Category("toys").Valid())
}
