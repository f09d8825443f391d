package models

import (
	"time"

	"gorm.io/datatypes"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxEvent is a domain event written in the same transaction as the state
// change it describes, and published later by the dispatcher.
type OutboxEvent struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	AggregateType string         `gorm:"not null;size:50" json:"aggregate_type"`
	AggregateID   uint           `gorm:"not null" json:"aggregate_id"`
	RoutingKey    string         `gorm:"not null;size:100" json:"routing_key"`
	Payload       datatypes.JSON `json:"payload"`
	Status        OutboxStatus   `gorm:"not null;size:10;index" json:"status"`
	RetryCount    int            `gorm:"not null" json:"retry_count"`
	NextRetryAt   *time.Time     `json:"next_retry_at"`
	Notified      bool           `gorm:"not null;default:false" json:"notified"`
}
