package repository

import (
	"context"
	"fmt"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/pkg/metrics"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pricePointsTable = "price_points"

// pricePointRepository реализует PricePointRepository через GORM
type pricePointRepository struct {
	db *gorm.DB
}

// NewPricePointRepository создает архив наблюдений цен
func NewPricePointRepository(db *gorm.DB) PricePointRepository {
	return &pricePointRepository{db: db}
}

// AutoMigrate создает таблицу архива, если ее нет
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&entity.PricePointRecord{})
}

func (r *pricePointRepository) Save(ctx context.Context, point entity.PricePoint) error {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpInsert, pricePointsTable)
	defer timer.ObserveDuration()

	record := entity.NewPricePointRecord(point)

	// Повторная запись того же наблюдения - не ошибка
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record)

	if result.Error != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpInsert)
		return fmt.Errorf("failed to archive price point %s: %w", point.ID, result.Error)
	}

	return nil
}

func (r *pricePointRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]entity.PricePoint, error) {
	timer := metrics.NewDbTimer(serviceName, metrics.DbOpSelect, pricePointsTable)
	defer timer.ObserveDuration()

	var records []entity.PricePointRecord
	query := r.db.WithContext(ctx).
		Where("observed_at >= ?", since).
		Order("observed_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	if err := query.Find(&records).Error; err != nil {
		metrics.RecordDbError(serviceName, metrics.DbOpSelect)
		return nil, fmt.Errorf("failed to list price points: %w", err)
	}

	// Берем самые свежие, возвращаем по возрастанию времени
	points := make([]entity.PricePoint, len(records))
	for i, rec := range records {
		points[len(records)-1-i] = rec.ToPricePoint()
	}

	return points, nil
}
