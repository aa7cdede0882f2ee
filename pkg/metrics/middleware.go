package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// =============================================================================
// Gin Middleware (для всех сервисов)
// =============================================================================

// GinPrometheusMiddleware возвращает Gin middleware,
// который собирает метрики http_requests_total и http_request_duration_seconds
func GinPrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Пропускаем метрики для /metrics и /health endpoints
		if skipPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()

		// Увеличиваем счётчик активных запросов
		HttpRequestsInFlight.WithLabelValues(serviceName).Inc()
		defer HttpRequestsInFlight.WithLabelValues(serviceName).Dec()

		// Выполняем запрос
		c.Next()

		// Записываем метрики
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := routeLabel(c)

		HttpRequestsTotal.WithLabelValues(serviceName, c.Request.Method, path, status).Inc()
		HttpRequestDuration.WithLabelValues(serviceName, c.Request.Method, path).Observe(duration)
	}
}

// =============================================================================
// Helpers
// =============================================================================

func skipPath(path string) bool {
	switch path {
	case "/metrics", "/health", "/health/ready", "/health/live":
		return true
	}
	return false
}

// routeLabel берет шаблон маршрута вместо сырого пути, чтобы id товаров
// не раздували кардинальность метрик
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}
