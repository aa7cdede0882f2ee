package service

import (
	"context"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
)

// AIGenerator - внешний провайдер генерации текста.
// Ошибки: entity.ErrNetwork, entity.ErrRateLimited, entity.ErrInvalidResponse
type AIGenerator interface {
	Generate(ctx context.Context, prompt, productContext string) (string, error)
}

// NotificationSink доставляет push-уведомление по ключу получателя
type NotificationSink interface {
	Deliver(ctx context.Context, title, body, targetKey string) error
}

// Notifier рассылает оповещение во все внешние каналы
type Notifier interface {
	Notify(ctx context.Context, alert entity.Alert) error
}

// EntitlementChecker - внешняя проверка доступа к AI-рекомендациям
type EntitlementChecker interface {
	RecommendationsAllowed(ctx context.Context) bool
}

// AllowAll - проверка доступа по умолчанию
type AllowAll struct{}

func (AllowAll) RecommendationsAllowed(context.Context) bool { return true }

// FailureReporter получает ошибки генерации, которые не отдаются вызывающему
type FailureReporter interface {
	ReportGenerationFailure(key string, err error)
}

// Clock возвращает текущее время; подменяется в тестах
type Clock func() time.Time
