// Package repository persists vault subscriptions, merchant balances, and
// charge receipts with raw SQL over gorm.
package repository

import (
	"context"
	"time"

	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() vaultdomain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, subscriber, merchant, amount, interval_seconds, last_payment_at,
	 status, prepaid_balance, usage_enabled, expires_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *vaultdomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vault_subscriptions (
			id, subscriber, merchant, amount, interval_seconds, last_payment_at,
			status, prepaid_balance, usage_enabled, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.Subscriber,
		subscription.Merchant,
		subscription.Amount,
		subscription.IntervalSeconds,
		subscription.LastPaymentAt,
		subscription.Status,
		subscription.PrepaidBalance,
		subscription.UsageEnabled,
		subscription.ExpiresAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

// Update writes the mutable fields. Subscriber, merchant, amount, interval,
// usage_enabled, and expiration are fixed at creation.
func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *vaultdomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE vault_subscriptions
		 SET status = ?, last_payment_at = ?, prepaid_balance = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.LastPaymentAt,
		subscription.PrepaidBalance,
		time.Now().UTC(),
		subscription.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id uint32) (*vaultdomain.Subscription, error) {
	var subscription vaultdomain.Subscription
	res := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM vault_subscriptions WHERE id = ?`,
		id,
	).Scan(&subscription)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id uint32) (*vaultdomain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		 FROM vault_subscriptions WHERE id = ?`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var subscription vaultdomain.Subscription
	res := db.WithContext(ctx).Raw(query, id).Scan(&subscription)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) ListByMerchant(ctx context.Context, db *gorm.DB, merchant string, startID uint32, limit int) ([]vaultdomain.Subscription, error) {
	var subscriptions []vaultdomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM vault_subscriptions
		 WHERE merchant = ? AND id >= ?
		 ORDER BY id
		 LIMIT ?`,
		merchant,
		startID,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) CountByMerchant(ctx context.Context, db *gorm.DB, merchant string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM vault_subscriptions WHERE merchant = ?`,
		merchant,
	).Scan(&count).Error
	return count, err
}

// ListDueIDs returns active subscriptions whose interval has elapsed at now
// and whose expiration, if any, has not passed.
func (r *repo) ListDueIDs(ctx context.Context, db *gorm.DB, now int64, limit int) ([]uint32, error) {
	var ids []uint32
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM vault_subscriptions
		 WHERE status = ?
		   AND (expires_at IS NULL OR expires_at > ?)
		   AND last_payment_at + interval_seconds <= ?
		 ORDER BY id
		 LIMIT ?`,
		vaultdomain.StatusActive,
		now,
		now,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) FindMerchantBalance(ctx context.Context, db *gorm.DB, merchant string) (*vaultdomain.MerchantBalance, error) {
	var balance vaultdomain.MerchantBalance
	res := db.WithContext(ctx).Raw(
		`SELECT merchant, balance, updated_at
		 FROM vault_merchant_balances WHERE merchant = ?`,
		merchant,
	).Scan(&balance)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &balance, nil
}

func (r *repo) FindMerchantBalanceForUpdate(ctx context.Context, db *gorm.DB, merchant string) (*vaultdomain.MerchantBalance, error) {
	query := `SELECT merchant, balance, updated_at
		 FROM vault_merchant_balances WHERE merchant = ?`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var balance vaultdomain.MerchantBalance
	res := db.WithContext(ctx).Raw(query, merchant).Scan(&balance)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &balance, nil
}

func (r *repo) UpsertMerchantBalance(ctx context.Context, db *gorm.DB, balance *vaultdomain.MerchantBalance) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vault_merchant_balances (merchant, balance, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (merchant) DO UPDATE SET balance = excluded.balance, updated_at = excluded.updated_at`,
		balance.Merchant,
		balance.Balance,
		time.Now().UTC(),
	).Error
}

func (r *repo) InsertReceipt(ctx context.Context, db *gorm.DB, receipt *vaultdomain.ChargeReceipt) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vault_charge_receipts (
			id, subscription_id, period_start, charged_at, idempotency_key, amount, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		receipt.ID,
		receipt.SubscriptionID,
		receipt.PeriodStart,
		receipt.ChargedAt,
		receipt.IdempotencyKey,
		receipt.Amount,
		receipt.CreatedAt,
	).Error
}

func (r *repo) FindReceiptByInstant(ctx context.Context, db *gorm.DB, subscriptionID uint32, chargedAt int64) (*vaultdomain.ChargeReceipt, error) {
	var receipt vaultdomain.ChargeReceipt
	res := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, period_start, charged_at, idempotency_key, amount, created_at
		 FROM vault_charge_receipts
		 WHERE subscription_id = ? AND charged_at = ?`,
		subscriptionID,
		chargedAt,
	).Scan(&receipt)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &receipt, nil
}

func (r *repo) FindReceiptByKey(ctx context.Context, db *gorm.DB, key string) (*vaultdomain.ChargeReceipt, error) {
	var receipt vaultdomain.ChargeReceipt
	res := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, period_start, charged_at, idempotency_key, amount, created_at
		 FROM vault_charge_receipts
		 WHERE idempotency_key = ?`,
		key,
	).Scan(&receipt)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &receipt, nil
}
