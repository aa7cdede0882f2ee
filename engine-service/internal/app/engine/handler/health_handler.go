package handler

import (
	"context"
	"net/http"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/pkg/logger"
	"pricewatch/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// StatusSource - состояние генерации для health check
type StatusSource interface {
	Status(ctx context.Context) entity.EngineStatus
}

// HealthCheckHandler проверяет зависимости сервиса. db может быть nil,
// если архив наблюдений отключен
type HealthCheckHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
	status      StatusSource
	now         func() time.Time
}

func NewHealthCheckHandler(db *gorm.DB, redisClient *redis.Client, status StatusSource) *HealthCheckHandler {
	return &HealthCheckHandler{
		db:          db,
		redisClient: redisClient,
		status:      status,
		now:         time.Now,
	}
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

func (h *HealthCheckHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	overallStatus := "healthy"

	if h.db != nil {
		if err := h.checkDatabase(ctx); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	if err := h.checkRedis(ctx); err != nil {
		checks["redis"] = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	} else {
		checks["redis"] = "healthy"
	}

	// Ошибка генерации не делает сервис нездоровым: кэш продолжает отдавать прошлые данные
	if h.status != nil {
		status := h.status.Status(ctx)
		if status.LastGenerationError != "" {
			checks["recommendations"] = "warning: " + status.LastGenerationError
			logger.Warn().Str("error", status.LastGenerationError).Msg("Health check: last recommendation generation failed")
		} else {
			checks["recommendations"] = "healthy"
		}
	}

	code := http.StatusOK
	if overallStatus != "healthy" {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    overallStatus,
		Service:   "engine-service",
		Checks:    checks,
		Timestamp: h.now(),
	})
}

func (h *HealthCheckHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.db != nil {
		if err := h.checkDatabase(ctx); err != nil {
			c.String(http.StatusServiceUnavailable, "database not ready")
			return
		}
	}

	if err := h.checkRedis(ctx); err != nil {
		c.String(http.StatusServiceUnavailable, "redis not ready")
		return
	}

	c.String(http.StatusOK, "ready")
}

func (h *HealthCheckHandler) Liveness(c *gin.Context) {
	c.String(http.StatusOK, "alive")
}

func (h *HealthCheckHandler) checkDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}

	stats := sqlDB.Stats()
	metrics.DbConnectionsOpen.WithLabelValues("engine-service", "idle").Set(float64(stats.Idle))
	metrics.DbConnectionsOpen.WithLabelValues("engine-service", "in_use").Set(float64(stats.InUse))
	return nil
}

func (h *HealthCheckHandler) checkRedis(ctx context.Context) error {
	return h.redisClient.Ping(ctx).Err()
}
