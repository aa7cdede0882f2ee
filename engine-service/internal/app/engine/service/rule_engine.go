package service

import (
	"sort"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
)

type RuleConfig struct {
	// DropThresholdPercent - минимальная скидка к прежнему минимуму для DealAlert
	DropThresholdPercent float64
	// DealTTL - срок жизни DealAlert, 0 - без срока
	DealTTL time.Duration
}

// InventorySnapshot - позиция запаса и значение NeedsReorder на прошлой проверке
type InventorySnapshot struct {
	Item                    entity.InventoryItem
	PreviouslyNeededReorder bool
}

// RuleInput - все, что нужно правилам. Любое поле может быть пустым
type RuleInput struct {
	Delta     *LedgerDelta
	Inventory []InventorySnapshot
	Budget    *entity.Budget
	Tracking  []entity.TrackingItem
	Now       time.Time
}

// Evaluation - результат правил. FiredThresholds и FiredCategories
// владелец бюджета должен отметить как сработавшие
type Evaluation struct {
	Alerts          []entity.Alert
	FiredThresholds []float64
	FiredCategories []entity.Category
}

// RuleEngine не хранит состояния и безопасен для вызова из любых горутин
type RuleEngine struct {
	cfg RuleConfig
}

func NewRuleEngine(cfg RuleConfig) *RuleEngine {
	return &RuleEngine{cfg: cfg}
}

func (e *RuleEngine) Config() RuleConfig {
	return e.cfg
}

func (e *RuleEngine) Evaluate(in RuleInput) Evaluation {
	var out Evaluation

	if in.Delta != nil && !in.Delta.Replayed {
		out.Alerts = append(out.Alerts, e.TargetPriceMet(*in.Delta, in.Tracking)...)
		if deal := e.SignificantDrop(*in.Delta); deal != nil {
			out.Alerts = append(out.Alerts, deal)
		}
	}

	out.Alerts = append(out.Alerts, e.Reorder(in.Inventory, in.Now)...)

	if in.Budget != nil {
		alerts, thresholds, categories := e.BudgetThresholds(*in.Budget, in.Now)
		out.Alerts = append(out.Alerts, alerts...)
		out.FiredThresholds = thresholds
		out.FiredCategories = categories
	}

	return out
}

// TargetPriceMet - итоговая цена не выше целевой у активного отслеживания товара
func (e *RuleEngine) TargetPriceMet(delta LedgerDelta, tracking []entity.TrackingItem) []entity.Alert {
	var alerts []entity.Alert
	total := delta.Point.TotalPrice()
	for _, item := range tracking {
		if !item.Active || item.ProductID != delta.Point.ProductID || item.TargetPrice == nil {
			continue
		}
		if total <= *item.TargetPrice {
			alerts = append(alerts, entity.NewPriceAlert(item, delta.Point))
		}
	}
	return alerts
}

// SignificantDrop - новая цена ниже прежнего минимума окна не меньше чем на порог
func (e *RuleEngine) SignificantDrop(delta LedgerDelta) *entity.DealAlert {
	if delta.PreviousLowest == nil || !delta.IsDrop {
		return nil
	}
	previous := delta.PreviousLowest.TotalPrice()
	discount := entity.DiscountPercentage(previous, delta.Point.TotalPrice())
	if discount < e.cfg.DropThresholdPercent {
		return nil
	}
	return entity.NewDealAlert(delta.Point, previous, e.cfg.DealTTL)
}

// Reorder срабатывает только на переходе NeedsReorder false -> true
func (e *RuleEngine) Reorder(snapshots []InventorySnapshot, now time.Time) []entity.Alert {
	var alerts []entity.Alert
	for _, s := range snapshots {
		if s.Item.NeedsReorder() && !s.PreviouslyNeededReorder {
			alerts = append(alerts, entity.NewReorderAlert(s.Item, now))
		}
	}
	return alerts
}

// BudgetThresholds проверяет пороги общего бюджета и лимиты категорий,
// которые еще не срабатывали в текущем периоде
func (e *RuleEngine) BudgetThresholds(budget entity.Budget, now time.Time) ([]entity.Alert, []float64, []entity.Category) {
	var (
		alerts     []entity.Alert
		thresholds []float64
		categories []entity.Category
	)

	for _, th := range budget.Thresholds {
		if th.Fired || !entity.PercentReached(budget.CurrentMonthSpending, budget.MonthlyLimit, th.Percent) {
			continue
		}
		alerts = append(alerts, entity.NewBudgetAlert("", th.Percent, budget.CurrentMonthSpending, budget.MonthlyLimit, budget.Period, budget.PeriodStart, now))
		thresholds = append(thresholds, th.Percent)
	}

	// Порядок категорий фиксирован, чтобы результат был детерминирован
	names := make([]string, 0, len(budget.CategoryLimits))
	for c := range budget.CategoryLimits {
		names = append(names, string(c))
	}
	sort.Strings(names)

	for _, name := range names {
		category := entity.Category(name)
		limit := budget.CategoryLimits[category]
		if budget.CategoryAlertsFired[category] {
			continue
		}
		spent := budget.CategorySpending[category]
		if !entity.PercentReached(spent, limit, 100) {
			continue
		}
		alerts = append(alerts, entity.NewBudgetAlert(category, 100, spent, limit, budget.Period, budget.PeriodStart, now))
		categories = append(categories, category)
	}

	return alerts, thresholds, categories
}
