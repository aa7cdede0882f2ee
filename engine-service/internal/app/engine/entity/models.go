package entity

import (
	"math"
	"time"
)

// Category - закрытый набор категорий товаров
type Category string

const (
	CategoryElectronics  Category = "electronics"
	CategoryGroceries    Category = "groceries"
	CategoryHousehold    Category = "household"
	CategoryPersonalCare Category = "personal_care"
	CategoryClothing     Category = "clothing"
	CategoryHome         Category = "home"
	CategoryOther        Category = "other"
)

var SupportedCategories = []Category{
	CategoryElectronics,
	CategoryGroceries,
	CategoryHousehold,
	CategoryPersonalCare,
	CategoryClothing,
	CategoryHome,
	CategoryOther,
}

// Valid проверяет, что категория входит в поддерживаемый набор
func (c Category) Valid() bool {
	for _, known := range SupportedCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Product - товар из каталога. Остальные сущности хранят только ProductID
type Product struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Brand    *string  `json:"brand,omitempty"`
	Barcode  *string  `json:"barcode,omitempty"`
}

type Retailer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website,omitempty"`
}

// PricePoint - одно наблюдение цены у конкретного продавца
type PricePoint struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	RetailerID   string    `json:"retailer_id"`
	Price        float64   `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
	InStock      bool      `json:"in_stock"`
	ShippingCost *float64  `json:"shipping_cost,omitempty"`
}

// TotalPrice возвращает цену с учетом доставки (отрицательная доставка игнорируется)
func (p PricePoint) TotalPrice() float64 {
	shipping := 0.0
	if p.ShippingCost != nil && *p.ShippingCost > 0 {
		shipping = *p.ShippingCost
	}
	return RoundMoney(p.Price + shipping)
}

// Validate проверяет значения наблюдения до записи в ledger
func (p PricePoint) Validate() error {
	if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) || p.Price < 0 {
		return ErrInvalidPrice
	}
	if p.ShippingCost != nil && (math.IsNaN(*p.ShippingCost) || math.IsInf(*p.ShippingCost, 0)) {
		return ErrInvalidPrice
	}
	if p.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// LedgerStats - сводка по истории цен одного товара
type LedgerStats struct {
	ProductID string      `json:"product_id"`
	Count     int         `json:"count"`
	Lowest    *PricePoint `json:"lowest,omitempty"`
	Highest   *PricePoint `json:"highest,omitempty"`
	Latest    *PricePoint `json:"latest,omitempty"`
	Average   float64     `json:"average"`
}

// InventoryItem - запас товара у пользователя
type InventoryItem struct {
	ProductID              string     `json:"product_id"`
	CurrentQuantity        int        `json:"current_quantity"`
	PreferredQuantity      int        `json:"preferred_quantity"`
	ReorderThreshold       int        `json:"reorder_threshold"`
	AverageConsumptionDays *int       `json:"average_consumption_days,omitempty"`
	LastPurchaseDate       *time.Time `json:"last_purchase_date,omitempty"`
	AutoReorder            bool       `json:"auto_reorder"`
}

func (i InventoryItem) Validate() error {
	if i.ProductID == "" {
		return ErrMissingProduct
	}
	if i.CurrentQuantity < 0 || i.PreferredQuantity <= 0 || i.ReorderThreshold < 0 {
		return ErrInvalidQuantity
	}
	if i.AverageConsumptionDays != nil && *i.AverageConsumptionDays <= 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// TrackingItem - отслеживаемый товар. History - ограниченная копия хвоста ledger
type TrackingItem struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"product_id"`
	TargetPrice *float64     `json:"target_price,omitempty"`
	Active      bool         `json:"active"`
	LastChecked *time.Time   `json:"last_checked,omitempty"`
	NotifyKey   string       `json:"notify_key,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	History     []PricePoint `json:"history,omitempty"`
}

// Clone возвращает копию без общих указателей и срезов
func (t TrackingItem) Clone() TrackingItem {
	out := t
	if t.TargetPrice != nil {
		target := *t.TargetPrice
		out.TargetPrice = &target
	}
	if t.LastChecked != nil {
		checked := *t.LastChecked
		out.LastChecked = &checked
	}
	if t.History != nil {
		out.History = append([]PricePoint(nil), t.History...)
	}
	return out
}

// BudgetThreshold - порог расходов в процентах от месячного лимита.
// Fired сбрасывается только при смене периода
type BudgetThreshold struct {
	Percent float64 `json:"percent"`
	Fired   bool    `json:"fired"`
}

type Budget struct {
	MonthlyLimit         float64              `json:"monthly_limit"`
	CategoryLimits       map[Category]float64 `json:"category_limits,omitempty"`
	CurrentMonthSpending float64              `json:"current_month_spending"`
	CategorySpending     map[Category]float64 `json:"category_spending,omitempty"`
	Thresholds           []BudgetThreshold    `json:"thresholds"`
	CategoryAlertsFired  map[Category]bool    `json:"category_alerts_fired,omitempty"`
	PeriodStart          time.Time            `json:"period_start"`
	// Period растет при каждом переносе, даже внутри одного месяца
	Period int `json:"period"`
}

func (b Budget) Remaining() float64 {
	return RoundMoney(b.MonthlyLimit - b.CurrentMonthSpending)
}

// SpendingPercent - доля потраченного от лимита, в процентах
func (b Budget) SpendingPercent() float64 {
	if b.MonthlyLimit <= 0 {
		return 0
	}
	return b.CurrentMonthSpending / b.MonthlyLimit * 100
}

func (b Budget) Clone() Budget {
	out := b
	out.CategoryLimits = make(map[Category]float64, len(b.CategoryLimits))
	for k, v := range b.CategoryLimits {
		out.CategoryLimits[k] = v
	}
	out.CategorySpending = make(map[Category]float64, len(b.CategorySpending))
	for k, v := range b.CategorySpending {
		out.CategorySpending[k] = v
	}
	out.CategoryAlertsFired = make(map[Category]bool, len(b.CategoryAlertsFired))
	for k, v := range b.CategoryAlertsFired {
		out.CategoryAlertsFired[k] = v
	}
	out.Thresholds = append([]BudgetThreshold(nil), b.Thresholds...)
	return out
}

// RecommendationType - закрытый набор типов рекомендаций
type RecommendationType string

const (
	RecommendationBuyNow      RecommendationType = "buy_now"
	RecommendationWaitForDrop RecommendationType = "wait_for_drop"
	RecommendationPriceDrop   RecommendationType = "price_drop"
	RecommendationStockUp     RecommendationType = "stock_up"
)

type BuyWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type AIRecommendation struct {
	ID               string             `json:"id"`
	ProductID        string             `json:"product_id"`
	Reason           string             `json:"reason"`
	Confidence       float64            `json:"confidence"`
	PotentialSavings *float64           `json:"potential_savings,omitempty"`
	BuyWindow        *BuyWindow         `json:"buy_window,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	Type             RecommendationType `json:"type"`
}

// Savings возвращает потенциальную экономию или 0
func (r AIRecommendation) Savings() float64 {
	if r.PotentialSavings == nil {
		return 0
	}
	return *r.PotentialSavings
}

func (r AIRecommendation) Clone() AIRecommendation {
	out := r
	if r.PotentialSavings != nil {
		savings := *r.PotentialSavings
		out.PotentialSavings = &savings
	}
	if r.BuyWindow != nil {
		window := *r.BuyWindow
		out.BuyWindow = &window
	}
	return out
}

// CacheState - состояние ключа кэша: Empty -> Pending -> Fresh -> Stale -> Pending
type CacheState string

const (
	CacheStateEmpty   CacheState = "empty"
	CacheStatePending CacheState = "pending"
	CacheStateFresh   CacheState = "fresh"
	CacheStateStale   CacheState = "stale"
)

// CacheEntry - сгенерированные рекомендации под ключом кэша
type CacheEntry struct {
	Key         string             `json:"key"`
	GeneratedAt time.Time          `json:"generated_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	Payload     []AIRecommendation `json:"payload"`
}

func NewCacheEntry(key string, payload []AIRecommendation, generatedAt time.Time, ttl time.Duration) CacheEntry {
	return CacheEntry{
		Key:         key,
		GeneratedAt: generatedAt,
		ExpiresAt:   generatedAt.Add(ttl),
		Payload:     payload,
	}
}

// IsStale - запись устарела, как только now >= ExpiresAt
func (e CacheEntry) IsStale(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func (e CacheEntry) Clone() CacheEntry {
	out := e
	if e.Payload != nil {
		out.Payload = make([]AIRecommendation, len(e.Payload))
		for i, rec := range e.Payload {
			out.Payload[i] = rec.Clone()
		}
	}
	return out
}

// DailyDigest - сводка для дашборда
type DailyDigest struct {
	Date                time.Time `json:"date"`
	DealCount           int       `json:"deal_count"`
	TotalSavings        float64   `json:"total_savings"`
	UrgentCount         int       `json:"urgent_count"`
	RestockCount        int       `json:"restock_count"`
	PriceAlertCount     int       `json:"price_alert_count"`
	BudgetAlertCount    int       `json:"budget_alert_count"`
	RecommendationCount int       `json:"recommendation_count"`
	Stale               bool      `json:"stale"`
}

// EngineStatus - снимок состояния планировщика и генерации
type EngineStatus struct {
	LastBatchRun          *time.Time `json:"last_batch_run,omitempty"`
	NextBatchRun          *time.Time `json:"next_batch_run,omitempty"`
	BatchRunning          bool       `json:"batch_running"`
	InFlightKeys          []string   `json:"in_flight_keys"`
	LastGenerationError   string     `json:"last_generation_error,omitempty"`
	LastGenerationErrorAt *time.Time `json:"last_generation_error_at,omitempty"`
	TrackedProducts       int        `json:"tracked_products"`
	AlertCount            int        `json:"alert_count"`
}

const (
	CacheKeyPrefixProduct = "product:"
	CacheKeyInventory     = "inventory"
)

// ProductCacheKey возвращает ключ кэша рекомендаций для товара
func ProductCacheKey(productID string) string {
	return CacheKeyPrefixProduct + productID
}
