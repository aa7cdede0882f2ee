package service

import (
	"sort"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
)

const (
	digestWindow  = 24 * time.Hour
	urgentHorizon = 24 * time.Hour
)

// BuildDigest считает сводку по оповещениям последних суток, которые еще не истекли
func BuildDigest(alerts []entity.Alert, recommendations []entity.AIRecommendation, now time.Time) entity.DailyDigest {
	digest := entity.DailyDigest{
		Date:                time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()),
		RecommendationCount: len(recommendations),
	}

	var savings []float64
	since := now.Add(-digestWindow)
	for _, a := range alerts {
		if a.OccurredAt().Before(since) || a.OccurredAt().After(now) {
			continue
		}
		switch alert := a.(type) {
		case *entity.DealAlert:
			if alert.Expired(now) {
				continue
			}
			digest.DealCount++
			savings = append(savings, alert.Savings)
			if alert.ExpiresAt != nil && alert.ExpiresAt.Sub(now) <= urgentHorizon {
				digest.UrgentCount++
			}
		case *entity.PriceAlert:
			digest.PriceAlertCount++
		case *entity.ReorderAlert:
			digest.RestockCount++
		case *entity.BudgetAlert:
			digest.BudgetAlertCount++
		}
	}
	digest.TotalSavings = entity.SumMoney(savings...)

	return digest
}

// Rank сортирует по уверенности, затем по экономии, отбрасывает ниже floor
// и обрезает до limit (limit <= 0 - без ограничения)
func Rank(recs []entity.AIRecommendation, limit int, floor float64) []entity.AIRecommendation {
	out := make([]entity.AIRecommendation, 0, len(recs))
	for _, r := range recs {
		if r.Confidence < floor {
			continue
		}
		out = append(out, r.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Savings() > out[j].Savings()
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
