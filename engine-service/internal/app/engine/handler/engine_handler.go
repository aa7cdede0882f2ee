package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
	"pricewatch/engine-service/internal/app/engine/service"
	"pricewatch/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type EngineServiceInterface interface {
	RegisterProduct(ctx context.Context, p entity.Product) (entity.Product, error)
	RegisterRetailer(ctx context.Context, r entity.Retailer) (entity.Retailer, error)
	Products() []entity.Product
	Product(id string) (entity.Product, bool)

	RecordPrice(ctx context.Context, point entity.PricePoint) (service.RecordPriceResult, error)
	LedgerStats(productID string) entity.LedgerStats
	LedgerHistory(productID string, n int) []entity.PricePoint

	StartTracking(ctx context.Context, productID string, target *float64, notifyKey string) (entity.TrackingItem, error)
	StopTracking(ctx context.Context, trackingID string) (entity.TrackingItem, error)
	GetTracking(trackingID string) (entity.TrackingItem, error)
	ListTracking(activeOnly bool) []entity.TrackingItem

	SetBudget(ctx context.Context, limit float64, categoryLimits map[entity.Category]float64, thresholds []float64) (entity.Budget, []entity.Alert, error)
	RecordBudgetSpend(ctx context.Context, category entity.Category, amount float64) ([]entity.Alert, error)
	RolloverBudgetPeriod(ctx context.Context) (entity.Budget, error)
	Budget() (entity.Budget, bool)

	AddInventoryItem(ctx context.Context, item entity.InventoryItem) (entity.InventoryItem, []entity.Alert, error)
	RecordPurchase(ctx context.Context, productID string, quantity int) (entity.InventoryItem, []entity.Alert, error)
	RecordConsumption(ctx context.Context, productID string, quantity int) (entity.InventoryItem, []entity.Alert, error)
	Inventory() []entity.InventoryItem

	Alerts() []entity.Alert
	GetRecommendations(ctx context.Context, limit int) ([]entity.AIRecommendation, bool)
	RefreshRecommendations(ctx context.Context, key string) (service.CacheResult, error)
	GetDashboardDigest(ctx context.Context) entity.DailyDigest
	Status(ctx context.Context) entity.EngineStatus
	Subscribe(buffer int) (<-chan entity.EngineEvent, func())
}

type EngineHandler struct {
	engine    EngineServiceInterface
	validator *validator.Validate
	now       func() time.Time
}

func NewEngineHandler(engine EngineServiceInterface) *EngineHandler {
	return &EngineHandler{
		engine:    engine,
		validator: validator.New(),
		now:       time.Now,
	}
}

// ===================== Catalog =====================

func (h *EngineHandler) RegisterProduct(c *gin.Context) {
	var req entity.RegisterProductRequest
	if !h.bind(c, &req) {
		return
	}

	product, err := h.engine.RegisterProduct(c.Request.Context(), entity.Product{
		ID:       req.ID,
		Name:     req.Name,
		Category: req.Category,
		Brand:    req.Brand,
		Barcode:  req.Barcode,
	})
	if err != nil {
		respondServiceError(c, err, "Failed to register product")
		return
	}

	c.JSON(http.StatusCreated, product)
}

func (h *EngineHandler) ListProducts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"products": h.engine.Products()})
}

func (h *EngineHandler) GetProduct(c *gin.Context) {
	product, ok := h.engine.Product(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, entity.ErrorResponse{Error: "Product not found"})
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *EngineHandler) RegisterRetailer(c *gin.Context) {
	var req entity.RegisterRetailerRequest
	if !h.bind(c, &req) {
		return
	}

	retailer, err := h.engine.RegisterRetailer(c.Request.Context(), entity.Retailer{
		ID:      req.ID,
		Name:    req.Name,
		Website: req.Website,
	})
	if err != nil {
		respondServiceError(c, err, "Failed to register retailer")
		return
	}

	c.JSON(http.StatusCreated, retailer)
}

// ===================== Prices =====================

// RecordPrice обрабатывает POST /products/:id/prices
func (h *EngineHandler) RecordPrice(c *gin.Context) {
	var req entity.RecordPriceRequest
	if !h.bind(c, &req) {
		return
	}

	point := entity.PricePoint{
		ID:           req.ID,
		ProductID:    c.Param("id"),
		RetailerID:   req.RetailerID,
		Price:        *req.Price,
		ShippingCost: req.ShippingCost,
		InStock:      true,
		Timestamp:    h.now().UTC(),
	}
	if point.ID == "" {
		point.ID = uuid.NewString()
	}
	if req.InStock != nil {
		point.InStock = *req.InStock
	}
	if req.Timestamp != nil {
		point.Timestamp = *req.Timestamp
	}

	result, err := h.engine.RecordPrice(c.Request.Context(), point)
	if err != nil {
		respondServiceError(c, err, "Failed to record price")
		return
	}

	status := http.StatusCreated
	if result.Delta.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, entity.RecordPriceResponse{
		Point:    result.Delta.Point,
		IsDrop:   result.Delta.IsDrop,
		Replayed: result.Delta.Replayed,
		Alerts:   alertViews(result.Alerts),
	})
}

// GetLedger обрабатывает GET /products/:id/prices?limit=N
func (h *EngineHandler) GetLedger(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	productID := c.Param("id")

	c.JSON(http.StatusOK, gin.H{
		"stats":   h.engine.LedgerStats(productID),
		"history": h.engine.LedgerHistory(productID, limit),
	})
}

// ===================== Tracking =====================

func (h *EngineHandler) StartTracking(c *gin.Context) {
	var req entity.StartTrackingRequest
	if !h.bind(c, &req) {
		return
	}

	item, err := h.engine.StartTracking(c.Request.Context(), req.ProductID, req.TargetPrice, req.NotifyKey)
	if err != nil {
		respondServiceError(c, err, "Failed to start tracking")
		return
	}

	c.JSON(http.StatusCreated, item)
}

func (h *EngineHandler) StopTracking(c *gin.Context) {
	item, err := h.engine.StopTracking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to stop tracking")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *EngineHandler) GetTracking(c *gin.Context) {
	item, err := h.engine.GetTracking(c.Param("id"))
	if err != nil {
		respondServiceError(c, err, "Failed to get tracking")
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *EngineHandler) ListTracking(c *gin.Context) {
	activeOnly := c.DefaultQuery("active", "true") != "false"
	c.JSON(http.StatusOK, gin.H{"items": h.engine.ListTracking(activeOnly)})
}

// ===================== Budget =====================

func (h *EngineHandler) SetBudget(c *gin.Context) {
	var req entity.SetBudgetRequest
	if !h.bind(c, &req) {
		return
	}

	budget, alerts, err := h.engine.SetBudget(c.Request.Context(), req.MonthlyLimit, req.CategoryLimits, req.Thresholds)
	if err != nil {
		respondServiceError(c, err, "Failed to set budget")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"budget": newBudgetResponse(budget),
		"alerts": alertViews(alerts),
	})
}

func (h *EngineHandler) GetBudget(c *gin.Context) {
	budget, ok := h.engine.Budget()
	if !ok {
		c.JSON(http.StatusNotFound, entity.ErrorResponse{Error: "Budget not set"})
		return
	}
	c.JSON(http.StatusOK, newBudgetResponse(budget))
}

func (h *EngineHandler) RecordSpend(c *gin.Context) {
	var req entity.BudgetSpendRequest
	if !h.bind(c, &req) {
		return
	}

	alerts, err := h.engine.RecordBudgetSpend(c.Request.Context(), req.Category, req.Amount)
	if err != nil {
		respondServiceError(c, err, "Failed to record spending")
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": alertViews(alerts)})
}

func (h *EngineHandler) RolloverBudget(c *gin.Context) {
	budget, err := h.engine.RolloverBudgetPeriod(c.Request.Context())
	if err != nil {
		respondServiceError(c, err, "Failed to roll over budget")
		return
	}
	c.JSON(http.StatusOK, newBudgetResponse(budget))
}

// ===================== Inventory =====================

func (h *EngineHandler) AddInventoryItem(c *gin.Context) {
	var req entity.AddInventoryRequest
	if !h.bind(c, &req) {
		return
	}

	item, alerts, err := h.engine.AddInventoryItem(c.Request.Context(), entity.InventoryItem{
		ProductID:              req.ProductID,
		CurrentQuantity:        req.CurrentQuantity,
		PreferredQuantity:      req.PreferredQuantity,
		ReorderThreshold:       req.ReorderThreshold,
		AverageConsumptionDays: req.AverageConsumptionDays,
		AutoReorder:            req.AutoReorder,
	})
	if err != nil {
		respondServiceError(c, err, "Failed to add inventory item")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"item":   entity.NewInventoryItemResponse(item, h.now()),
		"alerts": alertViews(alerts),
	})
}

func (h *EngineHandler) ListInventory(c *gin.Context) {
	items := h.engine.Inventory()
	now := h.now()

	out := make([]entity.InventoryItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, entity.NewInventoryItemResponse(item, now))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

func (h *EngineHandler) RecordPurchase(c *gin.Context) {
	h.adjustInventory(c, h.engine.RecordPurchase, "Failed to record purchase")
}

func (h *EngineHandler) RecordConsumption(c *gin.Context) {
	h.adjustInventory(c, h.engine.RecordConsumption, "Failed to record consumption")
}

type inventoryAdjuster func(ctx context.Context, productID string, quantity int) (entity.InventoryItem, []entity.Alert, error)

func (h *EngineHandler) adjustInventory(c *gin.Context, adjust inventoryAdjuster, failure string) {
	var req entity.QuantityRequest
	if !h.bind(c, &req) {
		return
	}

	item, alerts, err := adjust(c.Request.Context(), c.Param("product_id"), req.Quantity)
	if err != nil {
		respondServiceError(c, err, failure)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"item":   entity.NewInventoryItemResponse(item, h.now()),
		"alerts": alertViews(alerts),
	})
}

// ===================== Alerts & recommendations =====================

func (h *EngineHandler) ListAlerts(c *gin.Context) {
	kind := entity.AlertKind(c.Query("kind"))
	views := make([]entity.AlertView, 0)
	for _, a := range h.engine.Alerts() {
		if kind != "" && a.Kind() != kind {
			continue
		}
		views = append(views, entity.NewAlertView(a))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": views, "total": len(views)})
}

func (h *EngineHandler) GetRecommendations(c *gin.Context) {
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	recs, stale := h.engine.GetRecommendations(c.Request.Context(), limit)
	c.JSON(http.StatusOK, entity.RecommendationsResponse{
		Recommendations: recs,
		Stale:           stale,
	})
}

// RefreshProductRecommendations обрабатывает POST /products/:id/recommendations/refresh
func (h *EngineHandler) RefreshProductRecommendations(c *gin.Context) {
	h.refresh(c, entity.ProductCacheKey(c.Param("id")))
}

func (h *EngineHandler) RefreshInventoryRecommendations(c *gin.Context) {
	h.refresh(c, entity.CacheKeyInventory)
}

func (h *EngineHandler) refresh(c *gin.Context, key string) {
	result, err := h.engine.RefreshRecommendations(c.Request.Context(), key)
	if err != nil {
		respondServiceError(c, err, "Failed to refresh recommendations")
		return
	}

	resp := entity.RefreshResponse{
		Key:             key,
		Recommendations: []entity.AIRecommendation{},
		Stale:           result.Stale,
		Refreshed:       result.Refreshed,
	}
	if result.Entry != nil {
		resp.Recommendations = result.Entry.Payload
		resp.GeneratedAt = result.Entry.GeneratedAt
		resp.ExpiresAt = result.Entry.ExpiresAt
	}
	if result.Failure != nil {
		resp.Failure = result.Failure.Error()
	}

	// Генерация не удалась и отдать нечего
	if result.Failure != nil && result.Entry == nil {
		c.JSON(http.StatusBadGateway, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *EngineHandler) GetDigest(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.GetDashboardDigest(c.Request.Context()))
}

func (h *EngineHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Status(c.Request.Context()))
}

// StreamEvents отдает события движка через Server-Sent Events
func (h *EngineHandler) StreamEvents(c *gin.Context) {
	events, cancel := h.engine.Subscribe(32)
	defer cancel()

	logger.Debug().Str("client_ip", c.ClientIP()).Msg("Event stream opened")

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(evt.Type), evt)
			c.Writer.Flush()
		}
	}
}

// ===================== helpers =====================

func (h *EngineHandler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Error: "Invalid request body"})
		return false
	}
	if err := h.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Error: formatValidationError(err)})
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Error: "Invalid " + name})
		return 0, false
	}
	return v, true
}

func alertViews(alerts []entity.Alert) []entity.AlertView {
	views := make([]entity.AlertView, 0, len(alerts))
	for _, a := range alerts {
		views = append(views, entity.NewAlertView(a))
	}
	return views
}

func newBudgetResponse(b entity.Budget) entity.BudgetResponse {
	return entity.BudgetResponse{
		Budget:          b,
		Remaining:       b.Remaining(),
		SpendingPercent: b.SpendingPercent(),
	}
}

// respondServiceError переводит ошибки движка в HTTP статусы
func respondServiceError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, entity.ErrorResponse{Error: err.Error()})
	case errors.Is(err, entity.ErrNotEntitled):
		c.JSON(http.StatusForbidden, entity.ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusRequestTimeout, entity.ErrorResponse{Error: "Request cancelled"})
	default:
		logger.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		c.JSON(http.StatusInternalServerError, entity.ErrorResponse{Error: fallback})
	}
}

func formatValidationError(err error) string {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			return fieldError.Field() + " is " + fieldError.Tag()
		}
	}
	return "Validation failed"
}
