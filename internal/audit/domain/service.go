// Package domain contains the audit trail model for administrative actions.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog records one administrative or authorization-relevant action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Actor      string            `gorm:"type:text;not null;index"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "vault_audit_logs" }

var ErrInvalidAction = errors.New("invalid_action")

type Service interface {
	AuditLog(ctx context.Context, actor string, action string, targetType string, targetID *string, metadata map[string]any) error
	Recent(ctx context.Context, limit int) ([]AuditLog, error)
}
