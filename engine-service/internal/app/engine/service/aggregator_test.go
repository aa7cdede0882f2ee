package service

import (
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dealAt(productID string, previous, current float64, at time.Time, ttl time.Duration) *entity.DealAlert {
	return entity.NewDealAlert(price(productID, current, at), previous, ttl)
}

// ===================== Digest Tests =====================

func TestBuildDigest(t *testing.T) {
	// Arrange
	now := baseTime
	alerts := []entity.Alert{
		dealAt("p1", 249.99, 199.99, now.Add(-2*time.Hour), 48*time.Hour),
		dealAt("p2", 100, 80, now.Add(-30*time.Hour), 48*time.Hour),
		dealAt("p3", 50, 40, now.Add(-20*time.Hour), 30*time.Hour),
		dealAt("p4", 60, 40, now.Add(-10*time.Hour), 5*time.Hour),
		entity.NewPriceAlert(entity.TrackingItem{ID: "t1", TargetPrice: floatPtr(210)}, price("p1", 199.99, now.Add(-2*time.Hour))),
		entity.NewReorderAlert(entity.InventoryItem{ProductID: "p5", CurrentQuantity: 0, PreferredQuantity: 2}, now.Add(-time.Hour)),
		entity.NewBudgetAlert("", 80, 820, 1000, 0, PeriodStart(now), now.Add(-time.Minute)),
	}
	recs := []entity.AIRecommendation{{ID: "r1"}, {ID: "r2"}}

	// Act
	digest := BuildDigest(alerts, recs, now)

	// Assert
	assert.Equal(t, 2, digest.DealCount)
	assert.Equal(t, 60.0, digest.TotalSavings)
	assert.Equal(t, 1, digest.UrgentCount)
	assert.Equal(t, 1, digest.PriceAlertCount)
	assert.Equal(t, 1, digest.RestockCount)
	assert.Equal(t, 1, digest.BudgetAlertCount)
	assert.Equal(t, 2, digest.RecommendationCount)
	assert.Equal(t, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), digest.Date)
}

func TestBuildDigest_Empty(t *testing.T) {
	digest := BuildDigest(nil, nil, baseTime)

	assert.Equal(t, 0, digest.DealCount)
	assert.Equal(t, 0.0, digest.TotalSavings)
}

// ===================== Rank Tests =====================

func TestRank_OrdersByConfidenceThenSavings(t *testing.T) {
	recs := []entity.AIRecommendation{
		{ID: "a", Confidence: 0.6, PotentialSavings: floatPtr(10)},
		{ID: "b", Confidence: 0.9},
		{ID: "c", Confidence: 0.6, PotentialSavings: floatPtr(30)},
		{ID: "d", Confidence: 0.2, PotentialSavings: floatPtr(100)},
		{ID: "e", Confidence: 0.6, PotentialSavings: floatPtr(10)},
	}

	ranked := Rank(recs, 0, 0.3)

	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"b", "c", "a", "e"}, ids)
}

func TestRank_Limit(t *testing.T) {
	recs := []entity.AIRecommendation{{ID: "a", Confidence: 0.1}, {ID: "b", Confidence: 0.5}, {ID: "c", Confidence: 0.3}}

	ranked := Rank(recs, 2, 0)

	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].ID)
	assert.Equal(t, "c", ranked[1].ID)
}

func TestRank_DoesNotShareSavingsPointer(t *testing.T) {
	recs := []entity.AIRecommendation{{ID: "a", Confidence: 0.5, PotentialSavings: floatPtr(5)}}

	ranked := Rank(recs, 0, 0)
	*ranked[0].PotentialSavings = 99

	assert.Equal(t, 5.0, *recs[0].PotentialSavings)
}
