package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	eventservice "github.com/smallbiznis/subvault/internal/billingevent/service"
	"github.com/smallbiznis/subvault/internal/clock"
	"github.com/smallbiznis/subvault/internal/config"
	"github.com/smallbiznis/subvault/internal/migration"
	"github.com/smallbiznis/subvault/internal/safemath"
	transferservice "github.com/smallbiznis/subvault/internal/transfer/service"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"github.com/smallbiznis/subvault/internal/vault/repository"
)

const (
	testAdmin    = "admin"
	testMinTopup = 500
)

type testVault struct {
	t   *testing.T
	db  *gorm.DB
	clk *clock.FakeClock
	svc vaultdomain.Service
}

func newTestVault(t *testing.T) *testVault {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(db))

	require.NoError(t, db.Create(&vaultdomain.VaultSetting{
		ID:       vaultdomain.SettingID,
		Admin:    testAdmin,
		MinTopup: safemath.FromInt64(testMinTopup),
	}).Error)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	logger := zap.NewNop()
	clk := clock.NewFakeClock(time.Unix(1_700_000_000, 0))

	svc := NewService(Params{
		DB:       db,
		Log:      logger,
		GenID:    node,
		Clock:    clk,
		Config:   config.Config{VaultAccount: "vault"},
		Repo:     repository.Provide(),
		Settings: repository.ProvideSettingRepository(),
		Transfer: transferservice.NewService(transferservice.Params{Log: logger, GenID: node}),
		Events:   eventservice.NewService(eventservice.Params{Log: logger, GenID: node}),
	})

	return &testVault{t: t, db: db, clk: clk, svc: svc}
}

func (v *testVault) create(amount, interval, deposit int64) vaultdomain.Subscription {
	v.t.Helper()
	sub, err := v.svc.Create(context.Background(), vaultdomain.CreateSubscriptionRequest{
		Subscriber:      "alice",
		Merchant:        "acme",
		Amount:          safemath.FromInt64(amount),
		IntervalSeconds: uint64(interval),
		InitialDeposit:  safemath.FromInt64(deposit),
	})
	require.NoError(v.t, err)
	return sub
}

func (v *testVault) fetch(id uint32) vaultdomain.Subscription {
	v.t.Helper()
	sub, err := v.svc.GetSubscription(context.Background(), id)
	require.NoError(v.t, err)
	return sub
}

func (v *testVault) setStopped(stopped bool) {
	v.t.Helper()
	require.NoError(v.t, v.db.Exec(
		"UPDATE vault_settings SET stopped = ? WHERE id = ?", stopped, vaultdomain.SettingID,
	).Error)
}

func (v *testVault) merchantBalance(merchant string) safemath.Int128 {
	v.t.Helper()
	balance, err := v.svc.GetMerchantBalance(context.Background(), merchant)
	require.NoError(v.t, err)
	return balance
}
