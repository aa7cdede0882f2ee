package entity

import "time"

// PricePointRecord - строка архива наблюдений в Postgres
type PricePointRecord struct {
	ID           string    `gorm:"type:varchar(64);primaryKey"`
	ProductID    string    `gorm:"type:varchar(128);not null;index:idx_price_points_product_ts"`
	RetailerID   string    `gorm:"type:varchar(128);not null"`
	Price        float64   `gorm:"type:decimal(12,2);not null"`
	ShippingCost *float64  `gorm:"type:decimal(12,2)"`
	InStock      bool      `gorm:"not null"`
	ObservedAt   time.Time `gorm:"not null;index:idx_price_points_product_ts"`
}

// TableName указывает имя таблицы для GORM
func (PricePointRecord) TableName() string {
	return "price_points"
}

func NewPricePointRecord(p PricePoint) PricePointRecord {
	return PricePointRecord{
		ID:           p.ID,
		ProductID:    p.ProductID,
		RetailerID:   p.RetailerID,
		Price:        p.Price,
		ShippingCost: p.ShippingCost,
		InStock:      p.InStock,
		ObservedAt:   p.Timestamp,
	}
}

func (r PricePointRecord) ToPricePoint() PricePoint {
	return PricePoint{
		ID:           r.ID,
		ProductID:    r.ProductID,
		RetailerID:   r.RetailerID,
		Price:        r.Price,
		ShippingCost: r.ShippingCost,
		InStock:      r.InStock,
		Timestamp:    r.ObservedAt,
	}
}
