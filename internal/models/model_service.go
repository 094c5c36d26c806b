package models

import "time"

// Service is a catalog entry. Price is in minor units per 1000 units ordered.
type Service struct {
	ID          string `gorm:"column:id;primary_key;type:varchar(64)" json:"id"`
	Name        string `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Category    string `gorm:"column:category;type:varchar(64)" json:"category"`
	Price       int64  `gorm:"column:price;type:bigint;not null" json:"price"`
	MinQuantity int64  `gorm:"column:min_quantity;type:bigint;not null;default:0" json:"minQuantity"`
	// MaxQuantity of 0 means unbounded.
	MaxQuantity int64     `gorm:"column:max_quantity;type:bigint;not null;default:0" json:"maxQuantity"`
	IsActive    bool      `gorm:"column:is_active;not null;default:true" json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Service) TableName() string {
	return "service"
}

func (s *Service) AcceptsQuantity(q int64) bool {
	if q <= 0 || q < s.MinQuantity {
		return false
	}
	return s.MaxQuantity == 0 || q <= s.MaxQuantity
}
