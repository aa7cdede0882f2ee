package infrastructure

import (
	"context"

	"pricewatch/engine-service/internal/app/engine/entity"
)

type AlertPublisher interface {
	PublishAlert(ctx context.Context, msg entity.AlertMessage) error
	Close() error
}

// ProductNamer отдает человекочитаемое имя товара для текста уведомлений
type ProductNamer interface {
	ProductName(id string) string
}
