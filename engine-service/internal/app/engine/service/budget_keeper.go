package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
)

// BudgetKeeper - единственный владелец бюджета. Флаги Fired меняются только под его мьютексом
type BudgetKeeper struct {
	mu     sync.Mutex
	budget *entity.Budget
	rules  *RuleEngine
}

func NewBudgetKeeper(rules *RuleEngine) *BudgetKeeper {
	return &BudgetKeeper{rules: rules}
}

// PeriodStart - начало месяца, в который попадает t
func PeriodStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// Set задает лимиты и пороги. Траты текущего периода сохраняются,
// пороги, уже превышенные этими тратами, срабатывают сразу
func (k *BudgetKeeper) Set(limit float64, categoryLimits map[entity.Category]float64, thresholds []float64, now time.Time) ([]entity.Alert, error) {
	if !(limit > 0) || math.IsInf(limit, 0) {
		return nil, entity.ErrInvalidBudget
	}
	for c, v := range categoryLimits {
		if !c.Valid() {
			return nil, entity.ErrInvalidCategory
		}
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, entity.ErrInvalidBudget
		}
	}
	for _, p := range thresholds {
		if !(p > 0) || math.IsInf(p, 0) {
			return nil, entity.ErrInvalidBudget
		}
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	next := entity.Budget{
		MonthlyLimit:        limit,
		CategoryLimits:      make(map[entity.Category]float64, len(categoryLimits)),
		CategorySpending:    make(map[entity.Category]float64),
		CategoryAlertsFired: make(map[entity.Category]bool),
		PeriodStart:         PeriodStart(now),
	}
	for c, v := range categoryLimits {
		next.CategoryLimits[c] = v
	}

	fired := make(map[float64]bool)
	if k.budget != nil {
		next.CurrentMonthSpending = k.budget.CurrentMonthSpending
		next.PeriodStart = k.budget.PeriodStart
		next.Period = k.budget.Period
		for c, v := range k.budget.CategorySpending {
			next.CategorySpending[c] = v
		}
		for c, v := range k.budget.CategoryAlertsFired {
			next.CategoryAlertsFired[c] = v
		}
		for _, th := range k.budget.Thresholds {
			fired[th.Percent] = th.Fired
		}
	}

	sorted := append([]float64(nil), thresholds...)
	sort.Float64s(sorted)
	for i, p := range sorted {
		if i > 0 && sorted[i-1] == p {
			continue
		}
		next.Thresholds = append(next.Thresholds, entity.BudgetThreshold{Percent: p, Fired: fired[p]})
	}

	k.budget = &next
	return k.evaluateLocked(now), nil
}

// RecordSpend добавляет трату и возвращает сработавшие оповещения
func (k *BudgetKeeper) RecordSpend(category entity.Category, amount float64, now time.Time) ([]entity.Alert, error) {
	if !category.Valid() {
		return nil, entity.ErrInvalidCategory
	}
	if !(amount > 0) || math.IsInf(amount, 0) {
		return nil, entity.ErrInvalidBudget
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.budget == nil {
		return nil, entity.ErrBudgetNotSet
	}

	k.budget.CurrentMonthSpending = entity.SumMoney(k.budget.CurrentMonthSpending, amount)
	k.budget.CategorySpending[category] = entity.SumMoney(k.budget.CategorySpending[category], amount)

	return k.evaluateLocked(now), nil
}

func (k *BudgetKeeper) evaluateLocked(now time.Time) []entity.Alert {
	alerts, thresholds, categories := k.rules.BudgetThresholds(*k.budget, now)

	for _, p := range thresholds {
		for i := range k.budget.Thresholds {
			if k.budget.Thresholds[i].Percent == p {
				k.budget.Thresholds[i].Fired = true
			}
		}
	}
	for _, c := range categories {
		k.budget.CategoryAlertsFired[c] = true
	}

	return alerts
}

// Rollover начинает новый период с момента now: траты обнуляются, флаги сбрасываются.
// Номер периода увеличивается, поэтому пороги нового периода не совпадают
// со старыми оповещениями, даже если перенос случился в том же месяце
func (k *BudgetKeeper) Rollover(now time.Time) (entity.Budget, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.budget == nil {
		return entity.Budget{}, entity.ErrBudgetNotSet
	}

	k.budget.CurrentMonthSpending = 0
	k.budget.CategorySpending = make(map[entity.Category]float64)
	k.budget.CategoryAlertsFired = make(map[entity.Category]bool)
	for i := range k.budget.Thresholds {
		k.budget.Thresholds[i].Fired = false
	}
	k.budget.PeriodStart = now
	k.budget.Period++

	return k.budget.Clone(), nil
}

// Snapshot возвращает копию бюджета
func (k *BudgetKeeper) Snapshot() (entity.Budget, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.budget == nil {
		return entity.Budget{}, false
	}
	return k.budget.Clone(), true
}
