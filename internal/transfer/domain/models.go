// Package domain contains the value-transfer ledger models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subvault/internal/safemath"
	"gorm.io/gorm"
)

// Transfer is one movement of value between two named accounts: subscriber
// deposits, charge settlement into the vault pool, merchant withdrawals, and
// admin recovery all post here.
type Transfer struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	FromAccount string          `gorm:"type:text;not null;index"`
	ToAccount   string          `gorm:"type:text;not null;index"`
	Amount      safemath.Int128 `gorm:"type:numeric(40,0);not null"`
	Memo        string          `gorm:"type:text;not null"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transfer) TableName() string { return "vault_transfers" }

var (
	ErrInvalidAccount        = errors.New("invalid_account")
	ErrInvalidTransferAmount = errors.New("invalid_transfer_amount")
)

// Service posts transfers. Transfer takes the caller's transaction handle so a
// failed transfer rolls the surrounding ledger mutation back with it.
type Service interface {
	Transfer(ctx context.Context, db *gorm.DB, from, to string, amount safemath.Int128, memo string) error
}
