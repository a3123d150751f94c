package models

import (
	"time"
)

type ActuationLogEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Relay     int       `json:"relay"`
	State     string    `json:"state"`
	Response  string    `json:"response"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

func (ActuationLogEntry) TableName() string {
	return "control_log"
}
