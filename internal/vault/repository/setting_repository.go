package repository

import (
	"context"
	"math"
	"time"

	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"gorm.io/gorm"
)

type settingRepo struct{}

func ProvideSettingRepository() vaultdomain.SettingRepository {
	return &settingRepo{}
}

const settingColumns = `id, admin, min_topup, stopped, next_subscription_id, updated_at`

func (r *settingRepo) Find(ctx context.Context, db *gorm.DB) (*vaultdomain.VaultSetting, error) {
	var setting vaultdomain.VaultSetting
	res := db.WithContext(ctx).Raw(
		`SELECT `+settingColumns+` FROM vault_settings WHERE id = ?`,
		vaultdomain.SettingID,
	).Scan(&setting)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &setting, nil
}

func (r *settingRepo) FindForUpdate(ctx context.Context, db *gorm.DB) (*vaultdomain.VaultSetting, error) {
	query := `SELECT ` + settingColumns + ` FROM vault_settings WHERE id = ?`
	if db.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var setting vaultdomain.VaultSetting
	res := db.WithContext(ctx).Raw(query, vaultdomain.SettingID).Scan(&setting)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &setting, nil
}

func (r *settingRepo) Insert(ctx context.Context, db *gorm.DB, setting *vaultdomain.VaultSetting) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO vault_settings (id, admin, min_topup, stopped, next_subscription_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		vaultdomain.SettingID,
		setting.Admin,
		setting.MinTopup,
		setting.Stopped,
		setting.NextSubscriptionID,
		time.Now().UTC(),
	).Error
}

func (r *settingRepo) Update(ctx context.Context, db *gorm.DB, setting *vaultdomain.VaultSetting) error {
	return db.WithContext(ctx).Exec(
		`UPDATE vault_settings
		 SET admin = ?, min_topup = ?, stopped = ?, next_subscription_id = ?, updated_at = ?
		 WHERE id = ?`,
		setting.Admin,
		setting.MinTopup,
		setting.Stopped,
		setting.NextSubscriptionID,
		time.Now().UTC(),
		vaultdomain.SettingID,
	).Error
}

// AllocateID hands out the next subscription id under the settings row lock.
// At the ceiling it fails without touching the counter, so repeated attempts
// keep failing the same way.
func (r *settingRepo) AllocateID(ctx context.Context, db *gorm.DB) (uint32, error) {
	setting, err := r.FindForUpdate(ctx, db)
	if err != nil {
		return 0, err
	}
	if setting == nil {
		return 0, vaultdomain.ErrNotConfigured
	}
	if setting.NextSubscriptionID >= int64(math.MaxUint32) {
		return 0, vaultdomain.ErrSubscriptionLimitReached
	}

	id := uint32(setting.NextSubscriptionID)
	if err := db.WithContext(ctx).Exec(
		`UPDATE vault_settings
		 SET next_subscription_id = next_subscription_id + 1, updated_at = ?
		 WHERE id = ?`,
		time.Now().UTC(),
		vaultdomain.SettingID,
	).Error; err != nil {
		return 0, err
	}
	return id, nil
}
