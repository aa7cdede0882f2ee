package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/google/uuid"
)

const maxReasonLength = 500

// RecommendationGenerator собирает контекст для AI и оценивает ответ локально:
// уверенность и тип рекомендации считаются по истории цен, а не по тексту модели
type RecommendationGenerator struct {
	ai        AIGenerator
	catalog   *Catalog
	ledgers   *LedgerBook
	tracking  *TrackingRegistry
	inventory *InventoryBook
	now       Clock
	buyWindow time.Duration
}

func NewRecommendationGenerator(ai AIGenerator, catalog *Catalog, ledgers *LedgerBook, tracking *TrackingRegistry, inventory *InventoryBook, buyWindow time.Duration, now Clock) *RecommendationGenerator {
	if now == nil {
		now = time.Now
	}
	if buyWindow <= 0 {
		buyWindow = 48 * time.Hour
	}
	return &RecommendationGenerator{
		ai:        ai,
		catalog:   catalog,
		ledgers:   ledgers,
		tracking:  tracking,
		inventory: inventory,
		now:       now,
		buyWindow: buyWindow,
	}
}

type productContext struct {
	Product     entity.Product     `json:"product"`
	Stats       entity.LedgerStats `json:"stats"`
	TargetPrice *float64           `json:"target_price,omitempty"`
	Recent      []float64          `json:"recent_total_prices"`
}

// ForProduct возвращает генератор рекомендаций по одному товару.
// Без истории цен AI не вызывается и результат пуст
func (g *RecommendationGenerator) ForProduct(productID string) Generator {
	return func(ctx context.Context) ([]entity.AIRecommendation, error) {
		stats := g.ledgers.Stats(productID)
		if stats.Count == 0 || stats.Latest == nil {
			return []entity.AIRecommendation{}, nil
		}

		product, ok := g.catalog.Product(productID)
		if !ok {
			product = entity.Product{ID: productID, Name: productID, Category: entity.CategoryOther}
		}

		pc := productContext{Product: product, Stats: stats}
		for _, p := range g.ledgers.Snapshot(productID, 10) {
			pc.Recent = append(pc.Recent, p.TotalPrice())
		}
		if tracked := g.tracking.ActiveForProduct(productID); len(tracked) > 0 {
			pc.TargetPrice = tracked[0].TargetPrice
		}

		text, err := g.generate(ctx, productPrompt(pc), pc)
		if err != nil {
			return nil, err
		}

		return []entity.AIRecommendation{g.scoreProduct(pc, text)}, nil
	}
}

// ForInventory возвращает генератор рекомендаций "пополнить запас"
func (g *RecommendationGenerator) ForInventory() Generator {
	return func(ctx context.Context) ([]entity.AIRecommendation, error) {
		var low []entity.InventoryItem
		for _, item := range g.inventory.List() {
			if item.NeedsReorder() || item.StockLevel() == entity.StockCritical || item.StockLevel() == entity.StockLow {
				low = append(low, item)
			}
		}
		if len(low) == 0 {
			return []entity.AIRecommendation{}, nil
		}

		var b strings.Builder
		b.WriteString("Suggest restocking for the following household items running low:\n")
		for _, item := range low {
			fmt.Fprintf(&b, "- %s: %d of %d left (%s)\n", g.catalog.ProductName(item.ProductID), item.CurrentQuantity, item.PreferredQuantity, item.StockLevel())
		}

		text, err := g.generate(ctx, b.String(), low)
		if err != nil {
			return nil, err
		}

		now := g.now()
		recs := make([]entity.AIRecommendation, 0, len(low))
		for _, item := range low {
			rec := entity.AIRecommendation{
				ID:         uuid.NewString(),
				ProductID:  item.ProductID,
				Reason:     text,
				Confidence: stockConfidence(item.StockLevel()),
				CreatedAt:  now,
				Type:       entity.RecommendationStockUp,
			}
			if savings := g.restockSavings(item); savings > 0 {
				rec.PotentialSavings = &savings
			}
			end := now.Add(g.buyWindow)
			if runOut := item.EstimatedRunOutDate(now); runOut != nil && runOut.After(now) && runOut.Before(end) {
				end = *runOut
			}
			rec.BuyWindow = &entity.BuyWindow{Start: now, End: end}
			recs = append(recs, rec)
		}
		return recs, nil
	}
}

func (g *RecommendationGenerator) generate(ctx context.Context, prompt string, contextValue interface{}) (string, error) {
	raw, err := json.Marshal(contextValue)
	if err != nil {
		return "", fmt.Errorf("failed to encode product context: %w", err)
	}

	text, err := g.ai.Generate(ctx, prompt, string(raw))
	if err != nil {
		if errors.Is(err, entity.ErrGenerationFailure) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", entity.ErrGenerationFailure, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", entity.ErrInvalidResponse
	}
	if len(text) > maxReasonLength {
		text = strings.TrimSpace(text[:maxReasonLength]) + "..."
	}
	return text, nil
}

func productPrompt(pc productContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s (%s)\n", pc.Product.Name, pc.Product.Category)
	fmt.Fprintf(&b, "Observations: %d, average total price %.2f\n", pc.Stats.Count, pc.Stats.Average)
	if pc.Stats.Lowest != nil && pc.Stats.Highest != nil {
		fmt.Fprintf(&b, "Lowest %.2f, highest %.2f\n", pc.Stats.Lowest.TotalPrice(), pc.Stats.Highest.TotalPrice())
	}
	fmt.Fprintf(&b, "Latest %.2f at retailer %s\n", pc.Stats.Latest.TotalPrice(), pc.Stats.Latest.RetailerID)
	if pc.TargetPrice != nil {
		fmt.Fprintf(&b, "Shopper target price %.2f\n", *pc.TargetPrice)
	}
	b.WriteString("Should the shopper buy now or wait for a better price? Answer in two sentences.")
	return b.String()
}

// PricePosition - положение цены в диапазоне [min, max]: 0 - минимум, 1 - максимум
func PricePosition(price, low, high float64) float64 {
	if high <= low {
		return 0.5
	}
	pos := (price - low) / (high - low)
	return math.Max(0, math.Min(1, pos))
}

func (g *RecommendationGenerator) scoreProduct(pc productContext, reason string) entity.AIRecommendation {
	now := g.now()
	latest := pc.Stats.Latest.TotalPrice()
	low := pc.Stats.Lowest.TotalPrice()
	high := pc.Stats.Highest.TotalPrice()
	position := PricePosition(latest, low, high)

	falling := false
	if n := len(pc.Recent); n >= 2 {
		falling = pc.Recent[n-1] < pc.Recent[n-2]
	}
	targetMet := pc.TargetPrice != nil && latest <= *pc.TargetPrice

	rec := entity.AIRecommendation{
		ID:        uuid.NewString(),
		ProductID: pc.Product.ID,
		Reason:    reason,
		CreatedAt: now,
	}

	// Чем ближе цена к историческому минимуму, тем увереннее совет покупать
	confidence := 0.35 + 0.4*(1-position)
	if pc.Stats.Count < 3 {
		confidence -= 0.15
	}

	switch {
	case targetMet || position <= 0.2:
		rec.Type = entity.RecommendationBuyNow
		if targetMet {
			confidence += 0.2
		}
		rec.BuyWindow = &entity.BuyWindow{Start: now, End: now.Add(g.buyWindow)}
		if savings := entity.Savings(pc.Stats.Average, latest); savings > 0 {
			rec.PotentialSavings = &savings
		}
	case falling && position <= 0.5:
		rec.Type = entity.RecommendationPriceDrop
		confidence += 0.1
		rec.BuyWindow = &entity.BuyWindow{Start: now, End: now.Add(g.buyWindow)}
		if savings := entity.Savings(pc.Stats.Average, latest); savings > 0 {
			rec.PotentialSavings = &savings
		}
	default:
		rec.Type = entity.RecommendationWaitForDrop
		confidence = 0.3 + 0.5*position
		if pc.Stats.Count < 3 {
			confidence -= 0.15
		}
		rec.BuyWindow = &entity.BuyWindow{Start: now.Add(g.buyWindow), End: now.Add(7 * g.buyWindow)}
		if savings := entity.Savings(latest, low); savings > 0 {
			rec.PotentialSavings = &savings
		}
	}

	rec.Confidence = clampConfidence(confidence)
	return rec
}

func (g *RecommendationGenerator) restockSavings(item entity.InventoryItem) float64 {
	stats := g.ledgers.Stats(item.ProductID)
	if stats.Latest == nil {
		return 0
	}
	need := item.PreferredQuantity - item.CurrentQuantity
	if need <= 0 {
		return 0
	}
	perUnit := entity.Savings(stats.Average, stats.Latest.TotalPrice())
	return entity.RoundMoney(perUnit * float64(need))
}

func stockConfidence(level entity.StockLevel) float64 {
	switch level {
	case entity.StockCritical:
		return 0.9
	case entity.StockLow:
		return 0.75
	case entity.StockMedium:
		return 0.55
	default:
		return 0.4
	}
}

func clampConfidence(v float64) float64 {
	v = math.Max(0, math.Min(1, v))
	return math.Round(v*100) / 100
}
