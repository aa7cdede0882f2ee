package entity

import "time"

// EngineEventType - тип события во внутреннем потоке движка
type EngineEventType string

const (
	EventAlertRaised              EngineEventType = "alert_raised"
	EventGenerationFailed         EngineEventType = "generation_failed"
	EventRecommendationsRefreshed EngineEventType = "recommendations_refreshed"
	EventBatchCompleted           EngineEventType = "batch_completed"
	EventCacheStale               EngineEventType = "cache_stale"
)

// EngineEvent - событие для подписчиков Subscribe
type EngineEvent struct {
	Type     EngineEventType `json:"type"`
	Key      string          `json:"key,omitempty"`
	Alert    Alert           `json:"alert,omitempty"`
	Error    string          `json:"error,omitempty"`
	Occurred time.Time       `json:"occurred"`
}

const PriceObservedEventType = "PRICE_OBSERVED"

// PriceObservationEvent - наблюдение цены из Kafka
type PriceObservationEvent struct {
	EventType    string    `json:"event_type"` // PRICE_OBSERVED
	ID           string    `json:"id,omitempty"`
	ProductID    string    `json:"product_id"`
	RetailerID   string    `json:"retailer_id"`
	Price        float64   `json:"price"`
	ShippingCost *float64  `json:"shipping_cost,omitempty"`
	InStock      bool      `json:"in_stock"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e PriceObservationEvent) ToPricePoint() PricePoint {
	return PricePoint{
		ID:           e.ID,
		ProductID:    e.ProductID,
		RetailerID:   e.RetailerID,
		Price:        e.Price,
		ShippingCost: e.ShippingCost,
		InStock:      e.InStock,
		Timestamp:    e.Timestamp,
	}
}

const AlertRaisedEventType = "ALERT_RAISED"

// AlertMessage - оповещение, публикуемое в Kafka для внешних потребителей
type AlertMessage struct {
	EventType string    `json:"event_type"` // ALERT_RAISED
	Kind      AlertKind `json:"kind"`
	AlertID   string    `json:"alert_id"`
	ProductID string    `json:"product_id,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Alert     Alert     `json:"alert"`
	Timestamp time.Time `json:"timestamp"`
}
