// Package domain contains the billing event outbox model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event types emitted by the vault.
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionCharged   = "subscription.charged"
	EventSubscriptionPaused    = "subscription.paused"
	EventSubscriptionResumed   = "subscription.resumed"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventFundsDeposited        = "funds.deposited"
	EventMerchantWithdrawal    = "merchant.withdrawal"
	EventVaultRecovery         = "vault.recovery"
	EventVaultAdminRotated     = "vault.admin_rotated"
	EventVaultStopped          = "vault.stopped"
	EventVaultResumed          = "vault.resumed"
	EventVaultMinTopupUpdated  = "vault.min_topup_updated"
)

// BillingEvent captures outbox events for downstream billing workflows.
type BillingEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	EventType   string            `gorm:"type:text;not null;index"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_billing_event_dedupe"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

// Sink appends events to the outbox. Emit takes the caller's transaction
// handle so events commit or roll back with the mutation that produced them.
// An empty dedupeKey means no dedupe constraint; a duplicate key is a no-op.
type Sink interface {
	Emit(ctx context.Context, db *gorm.DB, eventType string, payload map[string]any, dedupeKey string) error
}
