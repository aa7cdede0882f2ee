package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/service"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

const (
	serviceName = "engine-service"

	defaultProcessAttempts = 5
	defaultRetryBackoff    = 500 * time.Millisecond
)

// PriceRecorder принимает наблюдения цен
type PriceRecorder interface {
	RecordPrice(ctx context.Context, point entity.PricePoint) (service.RecordPriceResult, error)
}

// KafkaConsumer читает наблюдения цен из топика price_events
type KafkaConsumer struct {
	reader   *kafka.Reader
	recorder PriceRecorder
	topic    string
	groupID  string
	stopChan chan struct{}
	doneChan chan struct{}

	maxAttempts  int
	retryBackoff time.Duration
}

func NewKafkaConsumer(
	brokers []string,
	topic string,
	groupID string,
	minBytes int,
	maxBytes int,
	recorder PriceRecorder,
) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: minBytes,
		MaxBytes: maxBytes,
		// Наблюдения до первого подключения группы тоже нужны ledger
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: 1 * time.Second,
	})

	return &KafkaConsumer{
		reader:   reader,
		recorder: recorder,
		topic:    topic,
		groupID:  groupID,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),

		maxAttempts:  defaultProcessAttempts,
		retryBackoff: defaultRetryBackoff,
	}
}

// Start запускает consumer в отдельной горутине
func (c *KafkaConsumer) Start(ctx context.Context) {
	logger.Info().Str("topic", c.topic).Str("group_id", c.groupID).Msg("Starting Kafka consumer")
	go c.consume(ctx)
}

func (c *KafkaConsumer) Stop() {
	logger.Info().Msg("Stopping Kafka consumer...")
	close(c.stopChan)
	<-c.doneChan
	if err := c.reader.Close(); err != nil {
		logger.Warn().Err(err).Msg("Failed to close Kafka reader")
	}
	logger.Info().Msg("Kafka consumer stopped")
}

func (c *KafkaConsumer) consume(ctx context.Context) {
	defer close(c.doneChan)

	for {
		select {
		case <-c.stopChan:
			return
		default:
			readCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			message, err := c.reader.FetchMessage(readCtx)
			cancel()

			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				metrics.RecordKafkaError(serviceName, c.topic, "fetch")
				logger.Warn().Err(err).Msg("Error fetching message")
				time.Sleep(time.Second)
				continue
			}

			start := time.Now()
			if err := c.processWithRetry(ctx, message); err != nil {
				if ctx.Err() != nil || errors.Is(err, errConsumerStopped) {
					return
				}
				// Reader не перечитывает незакоммиченное сообщение в той же сессии,
				// поэтому после исчерпания попыток оно пропускается
				metrics.RecordKafkaError(serviceName, c.topic, "process")
				logger.Error().Err(err).Int64("offset", message.Offset).Msg("Giving up on price event after retries, skipping")
			} else {
				metrics.RecordKafkaMessageConsumed(serviceName, c.topic, c.groupID, time.Since(start))
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				metrics.RecordKafkaError(serviceName, c.topic, "commit")
				logger.Warn().Err(err).Msg("Error committing message")
			}
		}
	}
}

var errConsumerStopped = errors.New("kafka consumer stopped")

// processWithRetry повторяет обработку на месте с нарастающей паузой.
// Повтор безопасен: id наблюдения не меняется между попытками
func (c *KafkaConsumer) processWithRetry(ctx context.Context, message kafka.Message) error {
	attempts := c.maxAttempts
	if attempts <= 0 {
		attempts = defaultProcessAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.processMessage(ctx, message); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		logger.Warn().Err(err).Int("attempt", attempt).Int64("offset", message.Offset).Msg("Error processing message, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopChan:
			return errConsumerStopped
		case <-time.After(c.retryBackoff * time.Duration(attempt)):
		}
	}
	return err
}

// processMessage возвращает ошибку только для временных сбоев.
// Битые и невалидные наблюдения пропускаются, чтобы не блокировать партицию
func (c *KafkaConsumer) processMessage(ctx context.Context, message kafka.Message) error {
	var event entity.PriceObservationEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		logger.Warn().Err(err).Int64("offset", message.Offset).Msg("Skipping malformed price event")
		return nil
	}

	if event.EventType != entity.PriceObservedEventType {
		logger.Debug().Str("event_type", event.EventType).Msg("Skipping unsupported event type")
		return nil
	}

	point := event.ToPricePoint()
	// Повторная доставка того же сообщения получит тот же id
	if point.ID == "" {
		point.ID = fmt.Sprintf("%s-%d-%d", message.Topic, message.Partition, message.Offset)
	}

	result, err := c.recorder.RecordPrice(ctx, point)
	if err != nil {
		if errors.Is(err, entity.ErrInvalidInput) {
			logger.Warn().Err(err).Str("product_id", event.ProductID).Int64("offset", message.Offset).Msg("Skipping invalid price observation")
			return nil
		}
		return fmt.Errorf("failed to record price observation: %w", err)
	}

	logger.Debug().
		Str("product_id", point.ProductID).
		Int("partition", message.Partition).
		Int64("offset", message.Offset).
		Bool("replayed", result.Delta.Replayed).
		Int("alerts", len(result.Alerts)).
		Msg("Price observation consumed")

	return nil
}

func (c *KafkaConsumer) GetStats() kafka.ReaderStats {
	return c.reader.Stats()
}
