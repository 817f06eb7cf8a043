package notification

import (
	"time"

	"gorm.io/datatypes"
)

// Message is what the engine asks the external notify capability to deliver.
type Message struct {
	UserID string         `json:"user_id"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}

// Notification is a delivered message kept in the user's inbox.
type Notification struct {
	ID        string         `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID    string         `gorm:"column:user_id;size:64;not null;index" json:"user_id"`
	Title     string         `gorm:"column:title;size:200;not null" json:"title"`
	Body      string         `gorm:"column:body" json:"body"`
	Data      datatypes.JSON `gorm:"column:data" json:"data,omitempty"`
	ReadAt    *time.Time     `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;index" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
