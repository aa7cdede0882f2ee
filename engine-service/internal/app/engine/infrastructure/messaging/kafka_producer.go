package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/pkg/metrics"

	"github.com/segmentio/kafka-go"
)

const serviceName = "engine-service"

type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	}

	return &KafkaProducer{writer: writer, topic: topic}
}

// PublishAlert пишет оповещение в топик. Ключ - товар, чтобы оповещения
// одного товара шли в одну партицию
func (p *KafkaProducer) PublishAlert(ctx context.Context, msg entity.AlertMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode alert message: %w", err)
	}

	key := msg.ProductID
	if key == "" {
		key = msg.AlertID
	}
	return p.PublishMessage(ctx, key, value)
}

func (p *KafkaProducer) PublishMessage(ctx context.Context, key string, value []byte) error {
	timer := metrics.NewKafkaProduceTimer(serviceName, p.topic)

	message := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	}

	if err := p.writer.WriteMessages(ctx, message); err != nil {
		timer.Error()
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	timer.Success()
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
