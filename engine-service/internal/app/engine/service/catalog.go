package service

import (
	"sort"
	"strings"
	"sync"

	"pricewatch/engine-service/internal/app/engine/entity"
)

// Catalog - справочник товаров и продавцов
type Catalog struct {
	mu        sync.RWMutex
	products  map[string]entity.Product
	retailers map[string]entity.Retailer
}

func NewCatalog() *Catalog {
	return &Catalog{
		products:  make(map[string]entity.Product),
		retailers: make(map[string]entity.Retailer),
	}
}

func (c *Catalog) PutProduct(p entity.Product) error {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" || strings.TrimSpace(p.Name) == "" {
		return entity.ErrMissingProduct
	}
	if p.Category == "" {
		p.Category = entity.CategoryOther
	}
	if !p.Category.Valid() {
		return entity.ErrInvalidCategory
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
	return nil
}

func (c *Catalog) PutRetailer(r entity.Retailer) error {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return entity.ErrInvalidInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.retailers[r.ID] = r
	return nil
}

func (c *Catalog) Product(id string) (entity.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	return p, ok
}

func (c *Catalog) Retailer(id string) (entity.Retailer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.retailers[id]
	return r, ok
}

// ProductName возвращает имя товара или его id, если товар не зарегистрирован
func (c *Catalog) ProductName(id string) string {
	if p, ok := c.Product(id); ok {
		return p.Name
	}
	return id
}

func (c *Catalog) Products() []entity.Product {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]entity.Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
