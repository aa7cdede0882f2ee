package entity

import "github.com/shopspring/decimal"

// RoundMoney округляет сумму до центов
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// DiscountPercentage = (prev-cur)/prev*100, не меньше нуля, 2 знака
func DiscountPercentage(previous, current float64) float64 {
	if previous <= 0 {
		return 0
	}
	prev := decimal.NewFromFloat(previous)
	cur := decimal.NewFromFloat(current)
	pct := prev.Sub(cur).Div(prev).Mul(decimal.NewFromInt(100))
	if pct.IsNegative() {
		return 0
	}
	f, _ := pct.Round(2).Float64()
	return f
}

// Savings - разница цен, не меньше нуля
func Savings(previous, current float64) float64 {
	diff := decimal.NewFromFloat(previous).Sub(decimal.NewFromFloat(current))
	if diff.IsNegative() {
		return 0
	}
	f, _ := diff.Round(2).Float64()
	return f
}

// SumMoney складывает суммы без накопления ошибки float
func SumMoney(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// PercentReached - spent составляет не меньше percent процентов от limit.
// Сравнение в decimal, чтобы 800 из 1000 давало ровно 80%
func PercentReached(spent, limit, percent float64) bool {
	if limit <= 0 {
		return false
	}
	lhs := decimal.NewFromFloat(spent).Mul(decimal.NewFromInt(100))
	rhs := decimal.NewFromFloat(percent).Mul(decimal.NewFromFloat(limit))
	return lhs.GreaterThanOrEqual(rhs)
}
