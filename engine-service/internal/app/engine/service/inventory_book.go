package service

import (
	"sort"
	"sync"
	"time"

	"pricewatch/engine-service/internal/app/engine/entity"
)

type inventoryEntry struct {
	item entity.InventoryItem
	// значение NeedsReorder на момент последней проверки правил
	neededReorder bool
}

// InventoryBook хранит запасы и состояние для срабатывания reorder по фронту
type InventoryBook struct {
	mu    sync.Mutex
	items map[string]*inventoryEntry
	rules *RuleEngine
}

func NewInventoryBook(rules *RuleEngine) *InventoryBook {
	return &InventoryBook{
		items: make(map[string]*inventoryEntry),
		rules: rules,
	}
}

// Add добавляет или заменяет позицию
func (b *InventoryBook) Add(item entity.InventoryItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.items[item.ProductID]; ok {
		existing.item = item
		return nil
	}
	b.items[item.ProductID] = &inventoryEntry{item: item}
	return nil
}

// RecordPurchase увеличивает запас и запоминает дату покупки
func (b *InventoryBook) RecordPurchase(productID string, quantity int, at time.Time) (entity.InventoryItem, error) {
	if quantity <= 0 {
		return entity.InventoryItem{}, entity.ErrInvalidQuantity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.items[productID]
	if !ok {
		return entity.InventoryItem{}, entity.ErrInventoryMissing
	}
	entry.item.CurrentQuantity += quantity
	purchased := at
	entry.item.LastPurchaseDate = &purchased
	return entry.item, nil
}

// RecordConsumption уменьшает запас. Расход больше остатка отклоняется целиком
func (b *InventoryBook) RecordConsumption(productID string, quantity int) (entity.InventoryItem, error) {
	if quantity <= 0 {
		return entity.InventoryItem{}, entity.ErrInvalidQuantity
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.items[productID]
	if !ok {
		return entity.InventoryItem{}, entity.ErrInventoryMissing
	}
	if quantity > entry.item.CurrentQuantity {
		return entity.InventoryItem{}, entity.ErrInvalidQuantity
	}
	entry.item.CurrentQuantity -= quantity
	return entry.item, nil
}

// Evaluate прогоняет правило reorder и запоминает текущее состояние
func (b *InventoryBook) Evaluate(now time.Time) []entity.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshots := make([]InventorySnapshot, 0, len(b.items))
	for _, id := range b.sortedIDsLocked() {
		entry := b.items[id]
		snapshots = append(snapshots, InventorySnapshot{Item: entry.item, PreviouslyNeededReorder: entry.neededReorder})
	}

	alerts := b.rules.Reorder(snapshots, now)

	for _, entry := range b.items {
		entry.neededReorder = entry.item.NeedsReorder()
	}
	return alerts
}

func (b *InventoryBook) Get(productID string) (entity.InventoryItem, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.items[productID]
	if !ok {
		return entity.InventoryItem{}, false
	}
	return entry.item, true
}

// List возвращает позиции, упорядоченные по id товара
func (b *InventoryBook) List() []entity.InventoryItem {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]entity.InventoryItem, 0, len(b.items))
	for _, id := range b.sortedIDsLocked() {
		items = append(items, b.items[id].item)
	}
	return items
}

func (b *InventoryBook) sortedIDsLocked() []string {
	ids := make([]string, 0, len(b.items))
	for id := range b.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
