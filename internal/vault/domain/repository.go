package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id uint32) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uint32) (*Subscription, error)
	ListByMerchant(ctx context.Context, db *gorm.DB, merchant string, startID uint32, limit int) ([]Subscription, error)
	CountByMerchant(ctx context.Context, db *gorm.DB, merchant string) (int64, error)
	ListDueIDs(ctx context.Context, db *gorm.DB, now int64, limit int) ([]uint32, error)

	FindMerchantBalance(ctx context.Context, db *gorm.DB, merchant string) (*MerchantBalance, error)
	FindMerchantBalanceForUpdate(ctx context.Context, db *gorm.DB, merchant string) (*MerchantBalance, error)
	UpsertMerchantBalance(ctx context.Context, db *gorm.DB, balance *MerchantBalance) error

	InsertReceipt(ctx context.Context, db *gorm.DB, receipt *ChargeReceipt) error
	FindReceiptByInstant(ctx context.Context, db *gorm.DB, subscriptionID uint32, chargedAt int64) (*ChargeReceipt, error)
	FindReceiptByKey(ctx context.Context, db *gorm.DB, key string) (*ChargeReceipt, error)
}

// SettingRepository owns the single vault_settings row: admin identity,
// minimum top-up, the stop flag, and the subscription id allocator slot.
type SettingRepository interface {
	Find(ctx context.Context, db *gorm.DB) (*VaultSetting, error)
	FindForUpdate(ctx context.Context, db *gorm.DB) (*VaultSetting, error)
	Insert(ctx context.Context, db *gorm.DB, setting *VaultSetting) error
	Update(ctx context.Context, db *gorm.DB, setting *VaultSetting) error
	// AllocateID hands out the next subscription id under a row lock. Must be
	// called inside a transaction; the counter is untouched on failure.
	AllocateID(ctx context.Context, db *gorm.DB) (uint32, error)
}
