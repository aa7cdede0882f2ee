package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AlertKind string

const (
	AlertKindDeal        AlertKind = "deal"
	AlertKindPriceTarget AlertKind = "price_target"
	AlertKindReorder     AlertKind = "reorder"
	AlertKindBudget      AlertKind = "budget"
)

// Alert - закрытый вариант оповещения. Реализуется только типами этого пакета
type Alert interface {
	Kind() AlertKind
	AlertID() string
	ProductRef() string
	DedupeKey() string
	OccurredAt() time.Time
	sealed()
}

// AlertID детерминирован по ключу дедупликации, повтор даст тот же id
func AlertID(dedupeKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(dedupeKey)).String()
}

func dedupeKey(kind AlertKind, subject string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%s", kind, subject, at.UTC().Format(time.RFC3339Nano))
}

type DealAlert struct {
	ID                 string     `json:"id"`
	ProductID          string     `json:"product_id"`
	RetailerID         string     `json:"retailer_id"`
	CurrentPrice       float64    `json:"current_price"`
	PreviousPrice      float64    `json:"previous_price"`
	DiscountPercentage float64    `json:"discount_percentage"`
	Savings            float64    `json:"savings"`
	AlertDate          time.Time  `json:"alert_date"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

func NewDealAlert(point PricePoint, previous float64, ttl time.Duration) *DealAlert {
	current := point.TotalPrice()
	a := &DealAlert{
		ProductID:          point.ProductID,
		RetailerID:         point.RetailerID,
		CurrentPrice:       current,
		PreviousPrice:      previous,
		DiscountPercentage: DiscountPercentage(previous, current),
		Savings:            Savings(previous, current),
		AlertDate:          point.Timestamp,
	}
	if ttl > 0 {
		expires := point.Timestamp.Add(ttl)
		a.ExpiresAt = &expires
	}
	a.ID = AlertID(a.DedupeKey())
	return a
}

func (a *DealAlert) Kind() AlertKind       { return AlertKindDeal }
func (a *DealAlert) AlertID() string       { return a.ID }
func (a *DealAlert) ProductRef() string    { return a.ProductID }
func (a *DealAlert) OccurredAt() time.Time { return a.AlertDate }
func (a *DealAlert) DedupeKey() string     { return dedupeKey(AlertKindDeal, a.ProductID, a.AlertDate) }
func (a *DealAlert) sealed()               {}

// Expired - истек ли срок предложения к моменту now
func (a *DealAlert) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && !now.Before(*a.ExpiresAt)
}

// PriceAlert - цена достигла целевой для отслеживаемого товара
type PriceAlert struct {
	ID           string    `json:"id"`
	TrackingID   string    `json:"tracking_id"`
	ProductID    string    `json:"product_id"`
	RetailerID   string    `json:"retailer_id"`
	CurrentPrice float64   `json:"current_price"`
	TargetPrice  float64   `json:"target_price"`
	NotifyKey    string    `json:"notify_key,omitempty"`
	AlertDate    time.Time `json:"alert_date"`
}

func NewPriceAlert(item TrackingItem, point PricePoint) *PriceAlert {
	a := &PriceAlert{
		TrackingID:   item.ID,
		ProductID:    point.ProductID,
		RetailerID:   point.RetailerID,
		CurrentPrice: point.TotalPrice(),
		NotifyKey:    item.NotifyKey,
		AlertDate:    point.Timestamp,
	}
	if item.TargetPrice != nil {
		a.TargetPrice = *item.TargetPrice
	}
	a.ID = AlertID(a.DedupeKey())
	return a
}

func (a *PriceAlert) Kind() AlertKind       { return AlertKindPriceTarget }
func (a *PriceAlert) AlertID() string       { return a.ID }
func (a *PriceAlert) ProductRef() string    { return a.ProductID }
func (a *PriceAlert) OccurredAt() time.Time { return a.AlertDate }
func (a *PriceAlert) DedupeKey() string {
	return dedupeKey(AlertKindPriceTarget, a.ProductID, a.AlertDate)
}
func (a *PriceAlert) sealed() {}

// ReorderAlert - запас опустился до порога дозаказа
type ReorderAlert struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"product_id"`
	CurrentQuantity int        `json:"current_quantity"`
	Threshold       int        `json:"threshold"`
	StockLevel      StockLevel `json:"stock_level"`
	RunOutDate      *time.Time `json:"run_out_date,omitempty"`
	AutoReorder     bool       `json:"auto_reorder"`
	AlertDate       time.Time  `json:"alert_date"`
}

func NewReorderAlert(item InventoryItem, now time.Time) *ReorderAlert {
	a := &ReorderAlert{
		ProductID:       item.ProductID,
		CurrentQuantity: item.CurrentQuantity,
		Threshold:       item.ReorderThreshold,
		StockLevel:      item.StockLevel(),
		RunOutDate:      item.EstimatedRunOutDate(now),
		AutoReorder:     item.AutoReorder,
		AlertDate:       now,
	}
	a.ID = AlertID(a.DedupeKey())
	return a
}

func (a *ReorderAlert) Kind() AlertKind       { return AlertKindReorder }
func (a *ReorderAlert) AlertID() string       { return a.ID }
func (a *ReorderAlert) ProductRef() string    { return a.ProductID }
func (a *ReorderAlert) OccurredAt() time.Time { return a.AlertDate }
func (a *ReorderAlert) DedupeKey() string {
	return dedupeKey(AlertKindReorder, a.ProductID, a.AlertDate)
}
func (a *ReorderAlert) sealed() {}

// BudgetAlert - пересечен порог общего бюджета или лимит категории.
// Для общего порога Category пуст
type BudgetAlert struct {
	ID          string    `json:"id"`
	Category    Category  `json:"category,omitempty"`
	Percent     float64   `json:"percent"`
	Spent       float64   `json:"spent"`
	Limit       float64   `json:"limit"`
	Period      int       `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	AlertDate   time.Time `json:"alert_date"`
}

func NewBudgetAlert(category Category, percent, spent, limit float64, period int, periodStart, now time.Time) *BudgetAlert {
	a := &BudgetAlert{
		Category:    category,
		Percent:     percent,
		Spent:       RoundMoney(spent),
		Limit:       limit,
		Period:      period,
		PeriodStart: periodStart,
		AlertDate:   now,
	}
	a.ID = AlertID(a.DedupeKey())
	return a
}

func (a *BudgetAlert) Kind() AlertKind       { return AlertKindBudget }
func (a *BudgetAlert) AlertID() string       { return a.ID }
func (a *BudgetAlert) ProductRef() string    { return "" }
func (a *BudgetAlert) OccurredAt() time.Time { return a.AlertDate }

// DedupeKey привязан к периоду, а не ко времени: порог срабатывает раз за период
func (a *BudgetAlert) DedupeKey() string {
	subject := "total"
	if a.Category != "" {
		subject = string(a.Category)
	}
	return fmt.Sprintf("%s|%s|%g|%d|%s", AlertKindBudget, subject, a.Percent, a.Period, a.PeriodStart.UTC().Format(time.RFC3339Nano))
}
func (a *BudgetAlert) sealed() {}

// AlertView - представление оповещения для API и Kafka
type AlertView struct {
	Kind    AlertKind `json:"kind"`
	ID      string    `json:"id"`
	Product string    `json:"product_id,omitempty"`
	At      time.Time `json:"at"`
	Alert   Alert     `json:"alert"`
}

func NewAlertView(a Alert) AlertView {
	return AlertView{
		Kind:    a.Kind(),
		ID:      a.AlertID(),
		Product: a.ProductRef(),
		At:      a.OccurredAt(),
		Alert:   a,
	}
}
