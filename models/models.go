// models/models.go
package models

import (
	"time"
)

// RoomEventKind 房间审计事件类型
type RoomEventKind string

const (
	EventCreated         RoomEventKind = "created"
	EventJoined          RoomEventKind = "joined"
	EventPaired          RoomEventKind = "paired"
	EventLeft            RoomEventKind = "left"
	EventClosed          RoomEventKind = "closed"
	EventProblemSelected RoomEventKind = "problem_selected"
	EventPuzzleCompleted RoomEventKind = "puzzle_completed"
)

// RoomEvent 一条房间生命周期审计记录
type RoomEvent struct {
	Code      string        `json:"code"`
	Kind      RoomEventKind `json:"kind"`
	ConnID    string        `json:"conn_id,omitempty"`
	Role      string        `json:"role,omitempty"`
	Problem   string        `json:"problem,omitempty"`
	Members   int           `json:"members"`
	CreatedAt time.Time     `json:"created_at"`
}
