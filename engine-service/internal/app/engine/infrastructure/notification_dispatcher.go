package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/service"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"

	"go.uber.org/multierr"
)

// NotificationDispatcher рассылает оповещения в Bark и в Kafka.
// Реализует service.Notifier
type NotificationDispatcher struct {
	sink      service.NotificationSink
	publisher AlertPublisher
	now       func() time.Time

	mu    sync.RWMutex
	namer ProductNamer
}

func NewNotificationDispatcher(sink service.NotificationSink, publisher AlertPublisher) *NotificationDispatcher {
	return &NotificationDispatcher{
		sink:      sink,
		publisher: publisher,
		now:       time.Now,
	}
}

// SetNamer задает источник имен товаров. Движок создается после диспетчера,
// поэтому имя подставляется отдельно
func (d *NotificationDispatcher) SetNamer(namer ProductNamer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.namer = namer
}

func (d *NotificationDispatcher) productName(id string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.namer == nil || id == "" {
		return id
	}
	return d.namer.ProductName(id)
}

// Notify отправляет оповещение во все настроенные каналы.
// Ошибки каналов объединяются, отказ одного не мешает остальным
func (d *NotificationDispatcher) Notify(ctx context.Context, alert entity.Alert) error {
	title, body := d.Format(alert)

	var errs error

	targetKey := ""
	if pa, ok := alert.(*entity.PriceAlert); ok {
		targetKey = pa.NotifyKey
	}
	if d.sink != nil && (targetKey != "" || sinkEnabled(d.sink)) {
		err := d.sink.Deliver(ctx, title, body, targetKey)
		metrics.RecordNotification("bark", err)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("bark: %w", err))
		}
	}

	if d.publisher != nil {
		msg := entity.AlertMessage{
			EventType: entity.AlertRaisedEventType,
			Kind:      alert.Kind(),
			AlertID:   alert.AlertID(),
			ProductID: alert.ProductRef(),
			Title:     title,
			Body:      body,
			Alert:     alert,
			Timestamp: d.now().UTC(),
		}
		err := d.publisher.PublishAlert(ctx, msg)
		metrics.RecordNotification("kafka", err)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("kafka: %w", err))
		}
	}

	if errs != nil {
		logger.Warn().Err(errs).
			Str("alert_id", alert.AlertID()).
			Str("kind", string(alert.Kind())).
			Msg("Alert delivery partially failed")
	}
	return errs
}

// sinkEnabled - у канала есть получатель по умолчанию
func sinkEnabled(sink service.NotificationSink) bool {
	if e, ok := sink.(interface{ Enabled() bool }); ok {
		return e.Enabled()
	}
	return true
}

// Format строит заголовок и текст уведомления
func (d *NotificationDispatcher) Format(alert entity.Alert) (string, string) {
	switch a := alert.(type) {
	case *entity.DealAlert:
		return fmt.Sprintf("Deal: %s", d.productName(a.ProductID)),
			fmt.Sprintf("Now $%.2f (was $%.2f), %.1f%% off, save $%.2f",
				a.CurrentPrice, a.PreviousPrice, a.DiscountPercentage, a.Savings)
	case *entity.PriceAlert:
		return fmt.Sprintf("Target price reached: %s", d.productName(a.ProductID)),
			fmt.Sprintf("Now $%.2f at %s, target $%.2f", a.CurrentPrice, a.RetailerID, a.TargetPrice)
	case *entity.ReorderAlert:
		body := fmt.Sprintf("%d left (reorder at %d), stock %s", a.CurrentQuantity, a.Threshold, a.StockLevel)
		if a.RunOutDate != nil {
			body += fmt.Sprintf(", runs out %s", a.RunOutDate.Format("2006-01-02"))
		}
		return fmt.Sprintf("Time to restock: %s", d.productName(a.ProductID)), body
	case *entity.BudgetAlert:
		scope := "Monthly budget"
		if a.Category != "" {
			scope = fmt.Sprintf("Budget for %s", a.Category)
		}
		return fmt.Sprintf("%s at %g%%", scope, a.Percent),
			fmt.Sprintf("Spent $%.2f of $%.2f", a.Spent, a.Limit)
	default:
		return string(alert.Kind()), alert.AlertID()
	}
}
