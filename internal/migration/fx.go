package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	auditdomain "github.com/smallbiznis/subvault/internal/audit/domain"
	billingeventdomain "github.com/smallbiznis/subvault/internal/billingevent/domain"
	transferdomain "github.com/smallbiznis/subvault/internal/transfer/domain"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite and mysql are dev/test targets; gorm builds the schema there.
		return AutoMigrate(conn)
	}),
)

// AutoMigrate creates the vault schema from the model definitions. Exported
// for tests that run against in-memory sqlite.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&vaultdomain.Subscription{},
		&vaultdomain.MerchantBalance{},
		&vaultdomain.ChargeReceipt{},
		&vaultdomain.VaultSetting{},
		&transferdomain.Transfer{},
		&billingeventdomain.BillingEvent{},
		&auditdomain.AuditLog{},
	)
}
