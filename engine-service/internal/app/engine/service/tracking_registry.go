package service

import (
	"math"
	"sort"
	"sync"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/google/uuid"
)

// TrackingRegistry - отслеживаемые товары, не больше одного на товар
type TrackingRegistry struct {
	mu           sync.RWMutex
	items        map[string]*entity.TrackingItem
	byProduct    map[string]string
	historyLimit int
	now          Clock
}

func NewTrackingRegistry(historyLimit int, now Clock) *TrackingRegistry {
	if now == nil {
		now = time.Now
	}
	return &TrackingRegistry{
		items:        make(map[string]*entity.TrackingItem),
		byProduct:    make(map[string]string),
		historyLimit: historyLimit,
		now:          now,
	}
}

// Start включает отслеживание. Для уже известного товара обновляет
// целевую цену и ключ уведомлений и снова активирует запись
func (r *TrackingRegistry) Start(productID string, target *float64, notifyKey string) (entity.TrackingItem, error) {
	if productID == "" {
		return entity.TrackingItem{}, entity.ErrMissingProduct
	}
	if target != nil && (!(*target > 0) || math.IsInf(*target, 0)) {
		return entity.TrackingItem{}, entity.ErrInvalidTarget
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var targetCopy *float64
	if target != nil {
		v := *target
		targetCopy = &v
	}

	if id, ok := r.byProduct[productID]; ok {
		item := r.items[id]
		item.TargetPrice = targetCopy
		item.NotifyKey = notifyKey
		item.Active = true
		return item.Clone(), nil
	}

	item := &entity.TrackingItem{
		ID:          uuid.NewString(),
		ProductID:   productID,
		TargetPrice: targetCopy,
		Active:      true,
		NotifyKey:   notifyKey,
		CreatedAt:   r.now(),
	}
	r.items[item.ID] = item
	r.byProduct[productID] = item.ID
	return item.Clone(), nil
}

// Stop деактивирует запись. История сохраняется
func (r *TrackingRegistry) Stop(id string) (entity.TrackingItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return entity.TrackingItem{}, entity.ErrTrackingNotFound
	}
	item.Active = false
	return item.Clone(), nil
}

func (r *TrackingRegistry) Get(id string) (entity.TrackingItem, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return entity.TrackingItem{}, false
	}
	return item.Clone(), true
}

// ActiveForProduct возвращает активное отслеживание товара, если оно есть
func (r *TrackingRegistry) ActiveForProduct(productID string) []entity.TrackingItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProduct[productID]
	if !ok || !r.items[id].Active {
		return nil
	}
	return []entity.TrackingItem{r.items[id].Clone()}
}

func (r *TrackingRegistry) IsTracked(productID string) bool {
	return len(r.ActiveForProduct(productID)) > 0
}

func (r *TrackingRegistry) Active() []entity.TrackingItem {
	return r.list(true)
}

func (r *TrackingRegistry) All() []entity.TrackingItem {
	return r.list(false)
}

func (r *TrackingRegistry) list(activeOnly bool) []entity.TrackingItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.TrackingItem, 0, len(r.items))
	for _, item := range r.items {
		if activeOnly && !item.Active {
			continue
		}
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// MarkChecked обновляет время проверки и копию хвоста истории
func (r *TrackingRegistry) MarkChecked(productID string, at time.Time, history []entity.PricePoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byProduct[productID]
	if !ok {
		return
	}
	item := r.items[id]
	checked := at
	item.LastChecked = &checked

	if r.historyLimit > 0 && len(history) > r.historyLimit {
		history = history[len(history)-r.historyLimit:]
	}
	item.History = append([]entity.PricePoint(nil), history...)
}
