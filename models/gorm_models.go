// models/gorm_models.go
package models

import (
	"time"
)

// GormRoomEvent room_events 表
type GormRoomEvent struct {
	ID        uint      `gorm:"primaryKey"`
	Code      string    `gorm:"size:16;index;not null"`
	Kind      string    `gorm:"size:32;not null"`
	ConnID    string    `gorm:"size:64"`
	Role      string    `gorm:"size:16"`
	Problem   string    `gorm:"size:16"`
	Members   int       `gorm:"default:0"`
	CreatedAt time.Time `gorm:"index"`
}

func (GormRoomEvent) TableName() string {
	return "room_events"
}

// NewGormRoomEvent converts an audit record to its gorm row.
func NewGormRoomEvent(e RoomEvent) GormRoomEvent {
	return GormRoomEvent{
		Code:      e.Code,
		Kind:      string(e.Kind),
		ConnID:    e.ConnID,
		Role:      e.Role,
		Problem:   e.Problem,
		Members:   e.Members,
		CreatedAt: e.CreatedAt,
	}
}
