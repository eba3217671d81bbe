package domain

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent records one mutation performed through a module service.
type AuditEvent struct {
	ID       int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	TS       time.Time         `gorm:"index" json:"ts"`
	Action   string            `gorm:"size:32" json:"action"`
	Module   string            `gorm:"size:64;index" json:"module"`
	EntityID string            `gorm:"size:64;index" json:"entityId,omitempty"`
	ActorID  string            `gorm:"size:64" json:"actorId,omitempty"`
	Payload  datatypes.JSONMap `json:"payload,omitempty"`
}

func (AuditEvent) TableName() string { return "audit_event" }

type APIKey struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	ActorID     string    `gorm:"size:64;index" json:"actorId"`
	Name        string    `gorm:"size:128" json:"name,omitempty"`
	KeyHash     string    `gorm:"size:64;uniqueIndex" json:"-"`
	Permissions string    `gorm:"size:1024" json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (APIKey) TableName() string { return "api_key" }
