package entity

import "time"

type RegisterProductRequest struct {
	ID       string   `json:"id" validate:"required,max=128"`
	Name     string   `json:"name" validate:"required,max=255"`
	Category Category `json:"category" validate:"required,oneof=electronics groceries household personal_care clothing home other"`
	Brand    *string  `json:"brand,omitempty" validate:"omitempty,max=128"`
	Barcode  *string  `json:"barcode,omitempty" validate:"omitempty,max=64"`
}

type RegisterRetailerRequest struct {
	ID      string `json:"id" validate:"required,max=128"`
	Name    string `json:"name" validate:"required,max=255"`
	Website string `json:"website,omitempty" validate:"omitempty,url"`
}

// RecordPriceRequest - ProductID берется из пути
type RecordPriceRequest struct {
	ID           string     `json:"id,omitempty"`
	RetailerID   string     `json:"retailer_id" validate:"required"`
	Price        *float64   `json:"price" validate:"required,gte=0"`
	ShippingCost *float64   `json:"shipping_cost,omitempty" validate:"omitempty,gte=0"`
	InStock      *bool      `json:"in_stock,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
}

type StartTrackingRequest struct {
	ProductID   string   `json:"product_id" validate:"required"`
	TargetPrice *float64 `json:"target_price,omitempty" validate:"omitempty,gt=0"`
	NotifyKey   string   `json:"notify_key,omitempty" validate:"omitempty,max=128"`
}

type SetBudgetRequest struct {
	MonthlyLimit   float64              `json:"monthly_limit" validate:"required,gt=0"`
	CategoryLimits map[Category]float64 `json:"category_limits,omitempty" validate:"omitempty,dive,gt=0"`
	// Пороги в процентах от лимита, например [50, 80, 100]
	Thresholds []float64 `json:"thresholds" validate:"omitempty,dive,gt=0,lte=1000"`
}

type BudgetSpendRequest struct {
	Category Category `json:"category" validate:"required,oneof=electronics groceries household personal_care clothing home other"`
	Amount   float64  `json:"amount" validate:"gt=0"`
}

type AddInventoryRequest struct {
	ProductID              string `json:"product_id" validate:"required"`
	CurrentQuantity        int    `json:"current_quantity" validate:"gte=0"`
	PreferredQuantity      int    `json:"preferred_quantity" validate:"required,gt=0"`
	ReorderThreshold       int    `json:"reorder_threshold" validate:"gte=0"`
	AverageConsumptionDays *int   `json:"average_consumption_days,omitempty" validate:"omitempty,gt=0"`
	AutoReorder            bool   `json:"auto_reorder"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0"`
}

type RecordPriceResponse struct {
	Point    PricePoint  `json:"point"`
	IsDrop   bool        `json:"is_drop"`
	Replayed bool        `json:"replayed"`
	Alerts   []AlertView `json:"alerts"`
}

type InventoryItemResponse struct {
	InventoryItem
	StockLevel   StockLevel `json:"stock_level"`
	NeedsReorder bool       `json:"needs_reorder"`
	RunOutDate   *time.Time `json:"run_out_date,omitempty"`
}

func NewInventoryItemResponse(item InventoryItem, now time.Time) InventoryItemResponse {
	return InventoryItemResponse{
		InventoryItem: item,
		StockLevel:    item.StockLevel(),
		NeedsReorder:  item.NeedsReorder(),
		RunOutDate:    item.EstimatedRunOutDate(now),
	}
}

type BudgetResponse struct {
	Budget
	Remaining       float64 `json:"remaining"`
	SpendingPercent float64 `json:"spending_percent"`
}

type RecommendationsResponse struct {
	Recommendations []AIRecommendation `json:"recommendations"`
	Stale           bool               `json:"stale"`
}

type RefreshResponse struct {
	Key             string             `json:"key"`
	Recommendations []AIRecommendation `json:"recommendations"`
	GeneratedAt     time.Time          `json:"generated_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	Stale           bool               `json:"stale"`
	Refreshed       bool               `json:"refreshed"`
	Failure         string             `json:"failure,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
