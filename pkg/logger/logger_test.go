package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithWriter_WritesServiceField(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("engine-service", "debug", &buf)

	Info().Str("key", "value").Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine-service", entry["service"])
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "value", entry["key"])
}

func TestInitWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("engine-service", "verbose", &buf)

	Debug().Msg("hidden")
	assert.Zero(t, buf.Len())

	Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestCronLogger(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("engine-service", "info", &buf)

	CronLogger{}.Error(errors.New("boom"), "job failed", "entry", 1)

	assert.Contains(t, buf.String(), "job failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestGinLoggerMiddleware_SetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	InitWithWriter("engine-service", "info", &buf)

	router := gin.New()
	router.Use(GinLoggerMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// Без заголовка - id генерируется
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	// С заголовком - id сохраняется
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(RequestIDHeader))
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)
}
