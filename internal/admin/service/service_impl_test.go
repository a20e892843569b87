package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	admindomain "github.com/smallbiznis/subvault/internal/admin/domain"
	auditservice "github.com/smallbiznis/subvault/internal/audit/service"
	eventservice "github.com/smallbiznis/subvault/internal/billingevent/service"
	"github.com/smallbiznis/subvault/internal/config"
	"github.com/smallbiznis/subvault/internal/migration"
	"github.com/smallbiznis/subvault/internal/safemath"
	transferservice "github.com/smallbiznis/subvault/internal/transfer/service"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"github.com/smallbiznis/subvault/internal/vault/repository"
)

func newTestAdmin(t *testing.T) (admindomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()

	svc := NewService(Params{
		DB:  db,
		Log: logger,
		Config: config.Config{
			AdminPrincipal: "admin",
			MinTopup:       "500",
			VaultAccount:   "vault",
		},
		Settings: repository.ProvideSettingRepository(),
		Transfer: transferservice.NewService(transferservice.Params{Log: logger, GenID: node}),
		Events:   eventservice.NewService(eventservice.Params{Log: logger, GenID: node}),
		AuditSvc: auditservice.NewService(auditservice.Params{DB: db, Log: logger, GenID: node}),
	})

	require.NoError(t, svc.Bootstrap(context.Background()))
	return svc, db
}

func TestBootstrap_Idempotent(t *testing.T) {
	svc, db := newTestAdmin(t)
	ctx := context.Background()

	// A second bootstrap leaves the existing row alone.
	require.NoError(t, svc.Bootstrap(ctx))

	var rows int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM vault_settings").Scan(&rows).Error)
	assert.Equal(t, int64(1), rows)

	admin, err := svc.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", admin)

	minTopup, err := svc.GetMinTopup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "500", minTopup.String())
}

func TestRotateAdmin(t *testing.T) {
	svc, _ := newTestAdmin(t)
	ctx := context.Background()

	err := svc.RotateAdmin(ctx, "mallory", "mallory")
	assert.ErrorIs(t, err, vaultdomain.ErrNotAdmin)

	err = svc.RotateAdmin(ctx, "admin", "  ")
	assert.ErrorIs(t, err, vaultdomain.ErrInvalidArguments)

	require.NoError(t, svc.RotateAdmin(ctx, "admin", "admin2"))
	admin, err := svc.GetAdmin(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin2", admin)

	// The old identity lost its privileges with the rotation.
	err = svc.RotateAdmin(ctx, "admin", "admin3")
	assert.ErrorIs(t, err, vaultdomain.ErrNotAdmin)
}

func TestSetMinTopup(t *testing.T) {
	svc, _ := newTestAdmin(t)
	ctx := context.Background()

	err := svc.SetMinTopup(ctx, "admin", safemath.FromInt64(0))
	assert.ErrorIs(t, err, vaultdomain.ErrInvalidConfig)

	err = svc.SetMinTopup(ctx, "mallory", safemath.FromInt64(2000))
	assert.ErrorIs(t, err, vaultdomain.ErrNotAdmin)

	require.NoError(t, svc.SetMinTopup(ctx, "admin", safemath.FromInt64(2000)))
	minTopup, err := svc.GetMinTopup(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2000", minTopup.String())
}

func TestEmergencyStopAndResume(t *testing.T) {
	svc, _ := newTestAdmin(t)
	ctx := context.Background()

	err := svc.EmergencyStop(ctx, "mallory")
	assert.ErrorIs(t, err, vaultdomain.ErrNotAdmin)

	require.NoError(t, svc.EmergencyStop(ctx, "admin"))
	stopped, err := svc.IsStopped(ctx)
	require.NoError(t, err)
	assert.True(t, stopped)

	// Repeating the stop is a no-op, not an error.
	require.NoError(t, svc.EmergencyStop(ctx, "admin"))

	require.NoError(t, svc.ResumeVault(ctx, "admin"))
	stopped, err = svc.IsStopped(ctx)
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestRecoverStrandedFunds(t *testing.T) {
	svc, db := newTestAdmin(t)
	ctx := context.Background()

	base := admindomain.RecoverRequest{
		Actor:     "admin",
		Recipient: "alice",
		Amount:    safemath.FromInt64(100),
		Reason:    vaultdomain.RecoveryAccidentalTransfer,
	}

	t.Run("validation", func(t *testing.T) {
		req := base
		req.Recipient = ""
		assert.ErrorIs(t, svc.RecoverStrandedFunds(ctx, req), vaultdomain.ErrInvalidArguments)

		req = base
		req.Amount = safemath.FromInt64(0)
		assert.ErrorIs(t, svc.RecoverStrandedFunds(ctx, req), vaultdomain.ErrInvalidRecoveryAmount)

		req = base
		req.Reason = "because"
		assert.ErrorIs(t, svc.RecoverStrandedFunds(ctx, req), vaultdomain.ErrInvalidArguments)

		req = base
		req.Actor = "mallory"
		assert.ErrorIs(t, svc.RecoverStrandedFunds(ctx, req), vaultdomain.ErrNotAdmin)
	})

	t.Run("posts a transfer", func(t *testing.T) {
		require.NoError(t, svc.RecoverStrandedFunds(ctx, base))

		var transfers int64
		require.NoError(t, db.Raw(
			"SELECT COUNT(*) FROM vault_transfers WHERE from_account = ? AND to_account = ?",
			"vault", "alice",
		).Scan(&transfers).Error)
		assert.Equal(t, int64(1), transfers)
	})

	t.Run("works while stopped", func(t *testing.T) {
		require.NoError(t, svc.EmergencyStop(ctx, "admin"))
		defer func() { require.NoError(t, svc.ResumeVault(ctx, "admin")) }()

		assert.NoError(t, svc.RecoverStrandedFunds(ctx, base))
	})
}
