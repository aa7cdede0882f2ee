package service

import (
	"math/rand"
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===================== Append Tests =====================

func TestAppend_Success(t *testing.T) {
	// Arrange
	ledger := NewPriceLedger("p1", 0, 0)

	// Act
	delta, err := ledger.Append(price("p1", 100, baseTime))

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, delta.Point.ID)
	assert.Nil(t, delta.PreviousLowest)
	assert.False(t, delta.IsDrop)
	assert.Equal(t, 1, ledger.Len())
}

func TestAppend_RejectsNegativePrice(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)

	_, err := ledger.Append(price("p1", -0.01, baseTime))

	assert.ErrorIs(t, err, entity.ErrInvalidPrice)
	assert.Equal(t, 0, ledger.Len())
}

func TestAppend_RejectsOutOfOrder(t *testing.T) {
	// Arrange
	ledger := NewPriceLedger("p1", 0, 0)
	_, err := ledger.Append(price("p1", 100, baseTime))
	require.NoError(t, err)
	before := ledger.Tail(0)

	// Act
	_, err = ledger.Append(price("p1", 50, baseTime.Add(-time.Second)))

	// Assert
	assert.ErrorIs(t, err, entity.ErrInvalidInput)
	assert.ErrorIs(t, err, entity.ErrOutOfOrder)
	assert.Equal(t, before, ledger.Tail(0))
}

func TestAppend_EqualTimestampAccepted(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)
	_, err := ledger.Append(price("p1", 100, baseTime))
	require.NoError(t, err)

	_, err = ledger.Append(price("p1", 90, baseTime))

	assert.NoError(t, err)
	assert.Equal(t, 2, ledger.Len())
}

func TestAppend_ReplayIsIdempotent(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)
	point := price("p1", 100, baseTime)
	point.ID = "obs-1"

	_, err := ledger.Append(point)
	require.NoError(t, err)

	delta, err := ledger.Append(point)

	assert.NoError(t, err)
	assert.True(t, delta.Replayed)
	assert.Equal(t, 1, ledger.Len())
}

func TestAppend_RejectsForeignProduct(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)

	_, err := ledger.Append(price("p2", 10, baseTime))

	assert.ErrorIs(t, err, entity.ErrInvalidInput)
}

func TestAppend_DropAgainstAllHistory(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)
	_, _ = ledger.Append(price("p1", 100, baseTime))
	_, _ = ledger.Append(price("p1", 120, baseTime.Add(72*time.Hour)))

	delta, err := ledger.Append(price("p1", 110, baseTime.Add(73*time.Hour)))

	require.NoError(t, err)
	require.NotNil(t, delta.PreviousLowest)
	assert.Equal(t, 100.0, delta.PreviousLowest.Price)
	assert.False(t, delta.IsDrop)
}

func TestAppend_DropWithinTrailingWindow(t *testing.T) {
	// Наблюдение 100 вне окна 48h не учитывается
	ledger := NewPriceLedger("p1", 48*time.Hour, 0)
	_, _ = ledger.Append(price("p1", 100, baseTime))
	_, _ = ledger.Append(price("p1", 120, baseTime.Add(72*time.Hour)))

	delta, err := ledger.Append(price("p1", 110, baseTime.Add(73*time.Hour)))

	require.NoError(t, err)
	require.NotNil(t, delta.PreviousLowest)
	assert.Equal(t, 120.0, delta.PreviousLowest.Price)
	assert.True(t, delta.IsDrop)
}

func TestAppend_DropUsesTotalPrice(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)
	_, _ = ledger.Append(price("p1", 100, baseTime))

	withShipping := price("p1", 95, baseTime.Add(time.Hour))
	withShipping.ShippingCost = floatPtr(10)
	delta, err := ledger.Append(withShipping)

	require.NoError(t, err)
	assert.False(t, delta.IsDrop)
}

func TestAppend_PrunesOldest(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 3)
	for i := 0; i < 5; i++ {
		_, err := ledger.Append(price("p1", float64(100+i), baseTime.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	points := ledger.Tail(0)
	require.Len(t, points, 3)
	assert.Equal(t, 102.0, points[0].Price)
	assert.Equal(t, 104.0, points[2].Price)
}

// ===================== Read Tests =====================

func TestEmptyLedger(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)

	_, hasLowest := ledger.Lowest()
	_, hasHighest := ledger.Highest()

	assert.False(t, hasLowest)
	assert.False(t, hasHighest)
	assert.Equal(t, 0.0, ledger.Average())
	assert.Empty(t, ledger.Tail(5))
}

func TestLowestHighest_TiesResolveToEarliest(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)
	first := price("p1", 50, baseTime)
	first.ID = "first"
	second := price("p1", 50, baseTime.Add(time.Hour))
	second.ID = "second"
	_, _ = ledger.Append(first)
	_, _ = ledger.Append(second)

	lowest, _ := ledger.Lowest()
	highest, _ := ledger.Highest()

	assert.Equal(t, "first", lowest.ID)
	assert.Equal(t, "first", highest.ID)
}

func TestAverage(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)
	_, _ = ledger.Append(price("p1", 10, baseTime))
	_, _ = ledger.Append(price("p1", 20, baseTime.Add(time.Minute)))
	_, _ = ledger.Append(price("p1", 30.01, baseTime.Add(2*time.Minute)))

	assert.Equal(t, 20.0, ledger.Average())
}

func TestLowestHighest_BoundEveryPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		ledger := NewPriceLedger("p1", 0, 0)
		n := 1 + rng.Intn(40)
		for i := 0; i < n; i++ {
			p := price("p1", float64(rng.Intn(100000))/100, baseTime.Add(time.Duration(i)*time.Minute))
			if rng.Intn(3) == 0 {
				p.ShippingCost = floatPtr(float64(rng.Intn(1000)) / 100)
			}
			_, err := ledger.Append(p)
			require.NoError(t, err)
		}

		lowest, _ := ledger.Lowest()
		highest, _ := ledger.Highest()
		for _, p := range ledger.Tail(0) {
			assert.LessOrEqual(t, lowest.TotalPrice(), p.TotalPrice())
			assert.GreaterOrEqual(t, highest.TotalPrice(), p.TotalPrice())
		}
	}
}

func TestTail_ReturnsCopy(t *testing.T) {
	ledger := NewPriceLedger("p1", 0, 0)
	_, _ = ledger.Append(price("p1", 10, baseTime))

	tail := ledger.Tail(1)
	tail[0].Price = 999

	latest, _ := ledger.Latest()
	assert.Equal(t, 10.0, latest.Price)
}

// ===================== LedgerBook Tests =====================

func TestLedgerBook_SeparatesProducts(t *testing.T) {
	book := NewLedgerBook(0, 0)

	_, err := book.Append(price("p1", 10, baseTime))
	require.NoError(t, err)
	// Товары независимы: более раннее время у другого товара допустимо
	_, err = book.Append(price("p2", 20, baseTime.Add(-time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, 1, book.Stats("p1").Count)
	assert.Equal(t, 1, book.Stats("p2").Count)
	assert.Equal(t, 0, book.Stats("p3").Count)
	assert.ElementsMatch(t, []string{"p1", "p2"}, book.ProductIDs())
}

func TestLedgerBook_RequiresProduct(t *testing.T) {
	book := NewLedgerBook(0, 0)

	_, err := book.Append(price("", 10, baseTime))

	assert.ErrorIs(t, err, entity.ErrMissingProduct)
}
