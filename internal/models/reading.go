package models

import (
	"time"
)

// Reading is one persisted observation of all four sensor dimensions.
// Rows are append-only; CreatedAt is assigned by the store.
type Reading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Humidity    float64   `json:"humidity"`
	Temperature float64   `json:"temperature"`
	Soil        int       `json:"soil"`
	Light       int       `json:"light"`
	CreatedAt   time.Time `gorm:"autoCreateTime:false;index" json:"created_at"`
	DedupBucket int64     `json:"-"`
}

func (Reading) TableName() string {
	return "readings"
}
