package messaging

import (
	"context"
	"testing"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===================== KafkaProducer Tests =====================

func TestNewKafkaProducer(t *testing.T) {
	// Act
	producer := NewKafkaProducer([]string{"localhost:9092"}, "price_alerts")
	defer producer.Close()

	// Assert
	require.NotNil(t, producer.writer)
	assert.Equal(t, "price_alerts", producer.topic)
	assert.Equal(t, "price_alerts", producer.writer.Topic)
	assert.IsType(t, &kafka.Hash{}, producer.writer.Balancer)
}

func TestKafkaProducer_PublishAlert_Unreachable(t *testing.T) {
	// Arrange
	producer := NewKafkaProducer([]string{"127.0.0.1:1"}, "price_alerts")
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	msg := entity.AlertMessage{
		EventType: entity.AlertRaisedEventType,
		Kind:      entity.AlertKindDeal,
		AlertID:   "a1",
		ProductID: "p1",
		Timestamp: time.Now(),
	}

	// Act
	err := producer.PublishAlert(ctx, msg)

	// Assert
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write message to kafka")
}
