package entity

import "time"

type StockLevel string

const (
	StockCritical StockLevel = "critical"
	StockLow      StockLevel = "low"
	StockMedium   StockLevel = "medium"
	StockGood     StockLevel = "good"
)

// NeedsReorder - запас на пороге дозаказа или ниже
func (i InventoryItem) NeedsReorder() bool {
	return i.CurrentQuantity <= i.ReorderThreshold
}

// StockRatio = current / preferred
func (i InventoryItem) StockRatio() float64 {
	if i.PreferredQuantity <= 0 {
		return 0
	}
	return float64(i.CurrentQuantity) / float64(i.PreferredQuantity)
}

// StockLevel - фиксированные полосы по доле запаса
func (i InventoryItem) StockLevel() StockLevel {
	ratio := i.StockRatio()
	switch {
	case ratio <= 0.25:
		return StockCritical
	case ratio <= 0.5:
		return StockLow
	case ratio <= 0.75:
		return StockMedium
	default:
		return StockGood
	}
}

// EstimatedRunOutDate прогнозирует дату окончания запаса.
// Есть два пути: от даты последней покупки и от текущего остатка.
// Возвращает nil, если средний срок потребления неизвестен
func (i InventoryItem) EstimatedRunOutDate(now time.Time) *time.Time {
	if i.AverageConsumptionDays == nil || *i.AverageConsumptionDays <= 0 {
		return nil
	}
	days := *i.AverageConsumptionDays

	if i.LastPurchaseDate != nil {
		runOut := i.LastPurchaseDate.AddDate(0, 0, days)
		return &runOut
	}

	if i.PreferredQuantity <= 0 {
		return nil
	}
	daysLeft := i.CurrentQuantity * days / i.PreferredQuantity
	runOut := now.AddDate(0, 0, daysLeft)
	return &runOut
}
