package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/subvault/internal/safemath"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

func TestChargeOne_Settles(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 1000)
	v.clk.Advance(time.Hour)

	require.NoError(t, v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID}))

	got := v.fetch(sub.ID)
	assert.Equal(t, "900", got.PrepaidBalance.String())
	assert.Equal(t, v.clk.Now().Unix(), got.LastPaymentAt)
	assert.Equal(t, vaultdomain.StatusActive, got.Status)
	assert.Equal(t, "100", v.merchantBalance("acme").String())

	var receipts int64
	require.NoError(t, v.db.Raw(
		"SELECT COUNT(*) FROM vault_charge_receipts WHERE subscription_id = ?", sub.ID,
	).Scan(&receipts).Error)
	assert.Equal(t, int64(1), receipts)
}

func TestChargeOne_IntervalBoundary(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 1000)

	v.clk.Advance(time.Hour - time.Second)
	err := v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID})
	assert.ErrorIs(t, err, vaultdomain.ErrIntervalNotElapsed)

	// Charging exactly at the boundary succeeds.
	v.clk.Advance(time.Second)
	assert.NoError(t, v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID}))
}

func TestChargeOne_ReplaySameInstant(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 1000)
	v.clk.Advance(time.Hour)

	require.NoError(t, v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID}))

	// A second settlement at the same instant must be rejected as a replay,
	// not reported as a timing miss.
	err := v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID})
	assert.ErrorIs(t, err, vaultdomain.ErrReplay)

	got := v.fetch(sub.ID)
	assert.Equal(t, "900", got.PrepaidBalance.String())
}

func TestChargeOne_IdempotencyKeyReplay(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 1000)
	v.clk.Advance(time.Hour)
	require.NoError(t, v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{
		SubscriptionID: sub.ID,
		IdempotencyKey: "run-42",
	}))

	// Even a full interval later, a reused key is a replay.
	v.clk.Advance(time.Hour)
	err := v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{
		SubscriptionID: sub.ID,
		IdempotencyKey: "run-42",
	})
	assert.ErrorIs(t, err, vaultdomain.ErrReplay)

	// A fresh key goes through.
	assert.NoError(t, v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{
		SubscriptionID: sub.ID,
		IdempotencyKey: "run-43",
	}))
}

func TestChargeOne_InsufficientBalanceIsSticky(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 0)
	v.clk.Advance(time.Hour)

	err := v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID})
	assert.ErrorIs(t, err, vaultdomain.ErrInsufficientBalance)

	// The status flip commits even though the charge itself failed; nothing
	// else about the subscription moves.
	got := v.fetch(sub.ID)
	assert.Equal(t, vaultdomain.StatusInsufficientBalance, got.Status)
	assert.Equal(t, "0", got.PrepaidBalance.String())
	assert.Equal(t, sub.LastPaymentAt, got.LastPaymentAt)
	assert.True(t, v.merchantBalance("acme").IsZero())

	// Topping up past one interval restores ACTIVE and the charge succeeds.
	_, err = v.svc.Deposit(ctx, vaultdomain.DepositRequest{
		SubscriptionID: sub.ID,
		Amount:         safemath.FromInt64(1000),
	})
	require.NoError(t, err)
	assert.Equal(t, vaultdomain.StatusActive, v.fetch(sub.ID).Status)
	assert.NoError(t, v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID}))
}

func TestChargeOne_Gates(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		err := v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: 9999})
		assert.ErrorIs(t, err, vaultdomain.ErrNotFound)
	})

	t.Run("paused is not chargeable", func(t *testing.T) {
		sub := v.create(100, 3600, 1000)
		require.NoError(t, v.svc.Pause(ctx, sub.ID, "alice"))
		v.clk.Advance(time.Hour)
		err := v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID})
		assert.ErrorIs(t, err, vaultdomain.ErrNotActive)
	})

	t.Run("expired", func(t *testing.T) {
		expiresAt := v.clk.Now().Add(30 * time.Minute).Unix()
		sub, err := v.svc.Create(ctx, vaultdomain.CreateSubscriptionRequest{
			Subscriber:      "bob",
			Merchant:        "acme",
			Amount:          safemath.FromInt64(100),
			IntervalSeconds: 3600,
			ExpiresAt:       &expiresAt,
			InitialDeposit:  safemath.FromInt64(1000),
		})
		require.NoError(t, err)
		v.clk.Advance(time.Hour)
		err = v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID})
		assert.ErrorIs(t, err, vaultdomain.ErrSubscriptionExpired)
	})

	t.Run("stopped vault", func(t *testing.T) {
		sub := v.create(100, 3600, 1000)
		v.clk.Advance(time.Hour)
		v.setStopped(true)
		defer v.setStopped(false)
		err := v.svc.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: sub.ID})
		assert.ErrorIs(t, err, vaultdomain.ErrVaultStopped)
	})
}

func TestBatchCharge_IsolatesFailures(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	funded := v.create(100, 3600, 1000)
	unfunded := v.create(100, 3600, 0)
	v.clk.Advance(time.Hour)

	results, err := v.svc.BatchCharge(ctx, vaultdomain.BatchChargeRequest{
		Actor:           vaultdomain.SystemActor,
		SubscriptionIDs: []uint32{funded.ID, unfunded.ID, 9999},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success)
	assert.Zero(t, results[0].ErrorCode)

	assert.False(t, results[1].Success)
	assert.Equal(t, vaultdomain.CodeOf(vaultdomain.ErrInsufficientBalance), results[1].ErrorCode)

	assert.False(t, results[2].Success)
	assert.Equal(t, vaultdomain.CodeOf(vaultdomain.ErrNotFound), results[2].ErrorCode)

	// The one failure did not roll back the funded settlement.
	assert.Equal(t, "900", v.fetch(funded.ID).PrepaidBalance.String())
}

func TestBatchCharge_RequiresBillingPrincipal(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 1000)
	v.clk.Advance(time.Hour)

	_, err := v.svc.BatchCharge(ctx, vaultdomain.BatchChargeRequest{
		Actor:           "mallory",
		SubscriptionIDs: []uint32{sub.ID},
	})
	assert.ErrorIs(t, err, vaultdomain.ErrUnauthorized)

	// The admin principal may run batches too.
	results, err := v.svc.BatchCharge(ctx, vaultdomain.BatchChargeRequest{
		Actor:           testAdmin,
		SubscriptionIDs: []uint32{sub.ID},
	})
	require.NoError(t, err)
	assert.True(t, results[0].Success)
}

func TestChargeUsage(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub, err := v.svc.Create(ctx, vaultdomain.CreateSubscriptionRequest{
		Subscriber:      "alice",
		Merchant:        "acme",
		Amount:          safemath.FromInt64(100),
		IntervalSeconds: 3600,
		UsageEnabled:    true,
		InitialDeposit:  safemath.FromInt64(1000),
	})
	require.NoError(t, err)

	t.Run("debits prepaid only", func(t *testing.T) {
		before := v.fetch(sub.ID)
		require.NoError(t, v.svc.ChargeUsage(ctx, vaultdomain.ChargeUsageRequest{
			SubscriptionID: sub.ID,
			UsageAmount:    safemath.FromInt64(300),
		}))
		got := v.fetch(sub.ID)
		assert.Equal(t, "700", got.PrepaidBalance.String())
		assert.Equal(t, before.LastPaymentAt, got.LastPaymentAt)
		assert.True(t, v.merchantBalance("acme").IsZero())
	})

	t.Run("over-drain is rejected", func(t *testing.T) {
		err := v.svc.ChargeUsage(ctx, vaultdomain.ChargeUsageRequest{
			SubscriptionID: sub.ID,
			UsageAmount:    safemath.FromInt64(100000),
		})
		assert.ErrorIs(t, err, vaultdomain.ErrInsufficientPrepaidBalance)
	})

	t.Run("draining to zero flips status", func(t *testing.T) {
		require.NoError(t, v.svc.ChargeUsage(ctx, vaultdomain.ChargeUsageRequest{
			SubscriptionID: sub.ID,
			UsageAmount:    safemath.FromInt64(700),
		}))
		got := v.fetch(sub.ID)
		assert.True(t, got.PrepaidBalance.IsZero())
		assert.Equal(t, vaultdomain.StatusInsufficientBalance, got.Status)
	})

	t.Run("requires usage billing", func(t *testing.T) {
		plain := v.create(100, 3600, 1000)
		err := v.svc.ChargeUsage(ctx, vaultdomain.ChargeUsageRequest{
			SubscriptionID: plain.ID,
			UsageAmount:    safemath.FromInt64(10),
		})
		assert.ErrorIs(t, err, vaultdomain.ErrUsageNotEnabled)
	})
}
