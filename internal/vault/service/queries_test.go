package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/subvault/internal/safemath"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

func TestNextChargeInfo(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 1000)

	info, err := v.svc.NextChargeInfo(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.LastPaymentAt+3600, info.NextChargeAt)
	assert.True(t, info.IsChargeExpected)

	require.NoError(t, v.svc.Pause(ctx, sub.ID, "alice"))
	info, err = v.svc.NextChargeInfo(ctx, sub.ID)
	require.NoError(t, err)
	assert.False(t, info.IsChargeExpected)

	_, err = v.svc.NextChargeInfo(ctx, 9999)
	assert.ErrorIs(t, err, vaultdomain.ErrNotFound)
}

func TestNextChargeInfo_SaturatesOnOverflow(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub, err := v.svc.Create(ctx, vaultdomain.CreateSubscriptionRequest{
		Subscriber:      "alice",
		Merchant:        "acme",
		Amount:          safemath.FromInt64(100),
		IntervalSeconds: math.MaxInt64,
	})
	require.NoError(t, err)

	info, err := v.svc.NextChargeInfo(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), info.NextChargeAt)
}

func TestEstimateTopupForIntervals(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	sub := v.create(100, 3600, 1000)

	// 1000 prepaid already covers ten intervals.
	topup, err := v.svc.EstimateTopupForIntervals(ctx, sub.ID, 10)
	require.NoError(t, err)
	assert.True(t, topup.IsZero())

	topup, err = v.svc.EstimateTopupForIntervals(ctx, sub.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, "1500", topup.String())
}

func TestListByMerchant(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		v.create(100, 3600, 0)
	}
	other, err := v.svc.Create(ctx, vaultdomain.CreateSubscriptionRequest{
		Subscriber:      "bob",
		Merchant:        "globex",
		Amount:          safemath.FromInt64(100),
		IntervalSeconds: 3600,
	})
	require.NoError(t, err)

	subs, err := v.svc.ListByMerchant(ctx, vaultdomain.ListByMerchantRequest{Merchant: "acme"})
	require.NoError(t, err)
	require.Len(t, subs, 4)

	// Keyset pagination resumes from the given id.
	subs, err = v.svc.ListByMerchant(ctx, vaultdomain.ListByMerchantRequest{
		Merchant: "acme",
		StartID:  2,
		Limit:    2,
	})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, uint32(2), subs[0].ID)
	assert.Equal(t, uint32(3), subs[1].ID)

	count, err := v.svc.GetMerchantSubscriptionCount(ctx, "globex")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, other.Merchant, "globex")
}

func TestListDueSubscriptionIDs(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	hourly := v.create(100, 3600, 1000)
	daily, err := v.svc.Create(ctx, vaultdomain.CreateSubscriptionRequest{
		Subscriber:      "bob",
		Merchant:        "acme",
		Amount:          safemath.FromInt64(100),
		IntervalSeconds: 86400,
		InitialDeposit:  safemath.FromInt64(1000),
	})
	require.NoError(t, err)
	paused := v.create(100, 3600, 1000)
	require.NoError(t, v.svc.Pause(ctx, paused.ID, "alice"))

	ids, err := v.svc.ListDueSubscriptionIDs(ctx, 100)
	require.NoError(t, err)
	assert.Empty(t, ids)

	v.clk.Advance(2 * time.Hour)
	ids, err = v.svc.ListDueSubscriptionIDs(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint32{hourly.ID}, ids)

	v.clk.Advance(24 * time.Hour)
	ids, err = v.svc.ListDueSubscriptionIDs(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint32{hourly.ID, daily.ID}, ids)
}
