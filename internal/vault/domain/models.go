// Package domain contains persistence models and core rules for the subscription vault.
package domain

import (
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subvault/internal/safemath"
)

// Status represents lifecycle states for a vault subscription.
type Status string

const (
	StatusActive              Status = "ACTIVE"
	StatusPaused              Status = "PAUSED"
	StatusCancelled           Status = "CANCELLED"
	StatusInsufficientBalance Status = "INSUFFICIENT_BALANCE"
)

// MaxSubscriptionID is the allocator ceiling. Ids start at 0, only increase,
// and are never reused; reaching the ceiling is a reported error, not a wrap.
const MaxSubscriptionID = uint32(math.MaxUint32)

// Subscription is one recurring payment agreement between a subscriber and a
// merchant. Rows are never deleted; CANCELLED is the terminal mutation.
type Subscription struct {
	ID              uint32          `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Subscriber      string          `gorm:"type:text;not null;index" json:"subscriber"`
	Merchant        string          `gorm:"type:text;not null;index" json:"merchant"`
	Amount          safemath.Int128 `gorm:"type:numeric(40,0);not null" json:"amount"`
	IntervalSeconds uint64          `gorm:"not null" json:"interval_seconds"`
	LastPaymentAt   int64           `gorm:"not null" json:"last_payment_at"`
	Status          Status          `gorm:"type:text;not null" json:"status"`
	PrepaidBalance  safemath.Int128 `gorm:"type:numeric(40,0);not null" json:"prepaid_balance"`
	UsageEnabled    bool            `gorm:"not null;default:false" json:"usage_enabled"`
	ExpiresAt       *int64          `gorm:"" json:"expires_at,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "vault_subscriptions" }

// Expired reports whether the subscription's optional expiration has passed.
func (s Subscription) Expired(now int64) bool {
	return s.ExpiresAt != nil && now >= *s.ExpiresAt
}

// MerchantBalance accumulates settled charges per merchant until withdrawal.
type MerchantBalance struct {
	Merchant  string          `gorm:"primaryKey;type:text" json:"merchant"`
	Balance   safemath.Int128 `gorm:"type:numeric(40,0);not null" json:"balance"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (MerchantBalance) TableName() string { return "vault_merchant_balances" }

// ChargeReceipt records one settled billing period. The unique constraints are
// the replay guard: a second settlement for the same instant, or a reused
// idempotency key, cannot be inserted.
type ChargeReceipt struct {
	ID             snowflake.ID    `gorm:"primaryKey"`
	SubscriptionID uint32          `gorm:"not null;uniqueIndex:ux_vault_receipt_instant"`
	PeriodStart    int64           `gorm:"not null"`
	ChargedAt      int64           `gorm:"not null;uniqueIndex:ux_vault_receipt_instant"`
	IdempotencyKey *string         `gorm:"type:text;uniqueIndex:ux_vault_receipt_key"`
	Amount         safemath.Int128 `gorm:"type:numeric(40,0);not null"`
	CreatedAt      time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ChargeReceipt) TableName() string { return "vault_charge_receipts" }

// VaultSetting is the single configuration row: admin identity, deposit floor,
// the emergency-stop flag, and the subscription id allocator slot.
type VaultSetting struct {
	ID       int16           `gorm:"primaryKey"`
	Admin    string          `gorm:"type:text;not null"`
	MinTopup safemath.Int128 `gorm:"type:numeric(40,0);not null"`
	Stopped  bool            `gorm:"not null;default:false"`
	// NextSubscriptionID is the next id to issue. int64 so every dialect can
	// store the full uint32 range without sign trouble.
	NextSubscriptionID int64     `gorm:"not null;default:0"`
	UpdatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (VaultSetting) TableName() string { return "vault_settings" }

// SettingID is the primary key of the single vault_settings row.
const SettingID int16 = 1

// SystemActor is the principal the billing runner acts as.
const SystemActor = "system"

// RecoveryReason tags an admin recovery with why the value was stranded.
type RecoveryReason string

const (
	RecoveryAccidentalTransfer    RecoveryReason = "accidental_transfer"
	RecoveryDeprecatedFlow        RecoveryReason = "deprecated_flow"
	RecoveryUnreachableSubscriber RecoveryReason = "unreachable_subscriber"
)

// Valid reports whether the reason is one of the documented tags.
func (r RecoveryReason) Valid() bool {
	switch r {
	case RecoveryAccidentalTransfer, RecoveryDeprecatedFlow, RecoveryUnreachableSubscriber:
		return true
	}
	return false
}
