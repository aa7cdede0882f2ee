package service

import (
	"sync"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"

	"github.com/google/uuid"
)

// LedgerDelta - результат успешного добавления наблюдения
type LedgerDelta struct {
	Point          entity.PricePoint
	PreviousLowest *entity.PricePoint
	IsDrop         bool
	Replayed       bool
}

// PriceLedger - упорядоченная по времени история цен одного товара.
// Нулевое значение непригодно, используйте NewPriceLedger
type PriceLedger struct {
	mu         sync.RWMutex
	productID  string
	points     []entity.PricePoint
	ids        map[string]struct{}
	dropWindow time.Duration
	maxPoints  int
}

// NewPriceLedger создает ledger. dropWindow = 0 - сравнение со всей историей,
// maxPoints = 0 - без ограничения
func NewPriceLedger(productID string, dropWindow time.Duration, maxPoints int) *PriceLedger {
	return &PriceLedger{
		productID:  productID,
		ids:        make(map[string]struct{}),
		dropWindow: dropWindow,
		maxPoints:  maxPoints,
	}
}

func (l *PriceLedger) ProductID() string {
	return l.productID
}

// Append добавляет наблюдение. При ошибке ledger не меняется
func (l *PriceLedger) Append(point entity.PricePoint) (LedgerDelta, error) {
	if err := point.Validate(); err != nil {
		return LedgerDelta{}, err
	}
	if point.ProductID == "" {
		point.ProductID = l.productID
	}
	if point.ProductID != l.productID {
		return LedgerDelta{}, entity.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if point.ID != "" {
		if _, seen := l.ids[point.ID]; seen {
			return LedgerDelta{Point: point, Replayed: true}, nil
		}
	}

	if n := len(l.points); n > 0 && point.Timestamp.Before(l.points[n-1].Timestamp) {
		return LedgerDelta{}, entity.ErrOutOfOrder
	}

	if point.ID == "" {
		point.ID = uuid.NewString()
	}

	delta := LedgerDelta{Point: point}
	if prev, ok := l.lowestSince(point.Timestamp); ok {
		delta.PreviousLowest = &prev
		delta.IsDrop = point.TotalPrice() < prev.TotalPrice()
	}

	l.points = append(l.points, point)
	l.ids[point.ID] = struct{}{}
	l.prune()

	return delta, nil
}

// lowestSince ищет минимум в окне dropWindow до момента at
func (l *PriceLedger) lowestSince(at time.Time) (entity.PricePoint, bool) {
	var from time.Time
	if l.dropWindow > 0 {
		from = at.Add(-l.dropWindow)
	}

	var lowest entity.PricePoint
	found := false
	for _, p := range l.points {
		if l.dropWindow > 0 && p.Timestamp.Before(from) {
			continue
		}
		if !found || p.TotalPrice() < lowest.TotalPrice() {
			lowest = p
			found = true
		}
	}
	return lowest, found
}

func (l *PriceLedger) prune() {
	if l.maxPoints <= 0 || len(l.points) <= l.maxPoints {
		return
	}
	excess := len(l.points) - l.maxPoints
	for _, p := range l.points[:excess] {
		delete(l.ids, p.ID)
	}
	l.points = append([]entity.PricePoint(nil), l.points[excess:]...)
}

// Lowest - минимальная итоговая цена; при равенстве - более раннее наблюдение
func (l *PriceLedger) Lowest() (entity.PricePoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.pick(func(candidate, current float64) bool { return candidate < current })
}

// Highest - максимальная итоговая цена; при равенстве - более раннее наблюдение
func (l *PriceLedger) Highest() (entity.PricePoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.pick(func(candidate, current float64) bool { return candidate > current })
}

func (l *PriceLedger) pick(better func(candidate, current float64) bool) (entity.PricePoint, bool) {
	if len(l.points) == 0 {
		return entity.PricePoint{}, false
	}
	best := l.points[0]
	for _, p := range l.points[1:] {
		if better(p.TotalPrice(), best.TotalPrice()) {
			best = p
		}
	}
	return best, true
}

// Average - средняя итоговая цена, 0 для пустого ledger
func (l *PriceLedger) Average() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.points) == 0 {
		return 0
	}
	totals := make([]float64, len(l.points))
	for i, p := range l.points {
		totals[i] = p.TotalPrice()
	}
	return entity.RoundMoney(entity.SumMoney(totals...) / float64(len(totals)))
}

func (l *PriceLedger) Latest() (entity.PricePoint, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.points) == 0 {
		return entity.PricePoint{}, false
	}
	return l.points[len(l.points)-1], true
}

func (l *PriceLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.points)
}

// Tail возвращает копию последних n наблюдений (n <= 0 - все)
func (l *PriceLedger) Tail(n int) []entity.PricePoint {
	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if n > 0 && len(l.points) > n {
		start = len(l.points) - n
	}
	return append([]entity.PricePoint(nil), l.points[start:]...)
}

func (l *PriceLedger) Stats() entity.LedgerStats {
	stats := entity.LedgerStats{
		ProductID: l.productID,
		Count:     l.Len(),
		Average:   l.Average(),
	}
	if p, ok := l.Lowest(); ok {
		stats.Lowest = &p
	}
	if p, ok := l.Highest(); ok {
		stats.Highest = &p
	}
	if p, ok := l.Latest(); ok {
		stats.Latest = &p
	}
	return stats
}

// LedgerBook хранит по одному ledger на товар
type LedgerBook struct {
	mu         sync.RWMutex
	ledgers    map[string]*PriceLedger
	dropWindow time.Duration
	maxPoints  int
}

func NewLedgerBook(dropWindow time.Duration, maxPoints int) *LedgerBook {
	return &LedgerBook{
		ledgers:    make(map[string]*PriceLedger),
		dropWindow: dropWindow,
		maxPoints:  maxPoints,
	}
}

// Ledger возвращает ledger товара, создавая его при первом обращении
func (b *LedgerBook) Ledger(productID string) *PriceLedger {
	b.mu.RLock()
	l, ok := b.ledgers[productID]
	b.mu.RUnlock()
	if ok {
		return l
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok = b.ledgers[productID]; ok {
		return l
	}
	l = NewPriceLedger(productID, b.dropWindow, b.maxPoints)
	b.ledgers[productID] = l
	return l
}

// Lookup не создает ledger
func (b *LedgerBook) Lookup(productID string) (*PriceLedger, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.ledgers[productID]
	return l, ok
}

func (b *LedgerBook) Append(point entity.PricePoint) (LedgerDelta, error) {
	if point.ProductID == "" {
		return LedgerDelta{}, entity.ErrMissingProduct
	}
	return b.Ledger(point.ProductID).Append(point)
}

// Snapshot - копия последних n наблюдений товара
func (b *LedgerBook) Snapshot(productID string, n int) []entity.PricePoint {
	l, ok := b.Lookup(productID)
	if !ok {
		return nil
	}
	return l.Tail(n)
}

func (b *LedgerBook) Stats(productID string) entity.LedgerStats {
	l, ok := b.Lookup(productID)
	if !ok {
		return entity.LedgerStats{ProductID: productID}
	}
	return l.Stats()
}

func (b *LedgerBook) ProductIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.ledgers))
	for id := range b.ledgers {
		ids = append(ids, id)
	}
	return ids
}
