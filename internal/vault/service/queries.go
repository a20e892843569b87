package service

import (
	"context"
	"math"
	"strings"

	"github.com/smallbiznis/subvault/internal/safemath"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (s *Service) GetSubscription(ctx context.Context, id uint32) (vaultdomain.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return vaultdomain.Subscription{}, err
	}
	if sub == nil {
		return vaultdomain.Subscription{}, vaultdomain.ErrNotFound
	}
	return *sub, nil
}

// GetSubscriptionCount returns the number of subscriptions ever created,
// which is exactly the next id the allocator would hand out.
func (s *Service) GetSubscriptionCount(ctx context.Context) (uint64, error) {
	setting, err := s.settings.Find(ctx, s.db)
	if err != nil {
		return 0, err
	}
	if setting == nil {
		return 0, vaultdomain.ErrNotConfigured
	}
	return uint64(setting.NextSubscriptionID), nil
}

func (s *Service) GetMerchantSubscriptionCount(ctx context.Context, merchant string) (int64, error) {
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return 0, vaultdomain.ErrInvalidArguments
	}
	return s.repo.CountByMerchant(ctx, s.db, merchant)
}

// NextChargeInfo reports when the next interval charge is due. A charge is
// expected for ACTIVE and INSUFFICIENT_BALANCE subscriptions that have not
// expired; the due time saturates instead of wrapping.
func (s *Service) NextChargeInfo(ctx context.Context, id uint32) (vaultdomain.NextChargeInfo, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return vaultdomain.NextChargeInfo{}, err
	}
	if sub == nil {
		return vaultdomain.NextChargeInfo{}, vaultdomain.ErrNotFound
	}

	due, ok := nextChargeAt(sub.LastPaymentAt, sub.IntervalSeconds)
	if !ok {
		due = math.MaxInt64
	}

	expected := sub.Status == vaultdomain.StatusActive || sub.Status == vaultdomain.StatusInsufficientBalance
	if sub.Expired(s.clock.Now().Unix()) {
		expected = false
	}

	return vaultdomain.NextChargeInfo{
		NextChargeAt:     due,
		IsChargeExpected: expected,
	}, nil
}

// EstimateTopupForIntervals returns how much the subscriber must deposit to
// cover the next n interval charges: max(0, amount*n - prepaid_balance).
func (s *Service) EstimateTopupForIntervals(ctx context.Context, id uint32, intervals uint32) (safemath.Int128, error) {
	sub, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return safemath.Int128{}, err
	}
	if sub == nil {
		return safemath.Int128{}, vaultdomain.ErrNotFound
	}

	needed, err := safemath.MulUint32(sub.Amount, intervals)
	if err != nil {
		return safemath.Int128{}, err
	}

	shortfall, err := safemath.SafeSub(needed, sub.PrepaidBalance)
	if err != nil {
		return safemath.Int128{}, err
	}
	if shortfall.Sign() < 0 {
		return safemath.FromInt64(0), nil
	}
	return shortfall, nil
}

func (s *Service) ListByMerchant(ctx context.Context, req vaultdomain.ListByMerchantRequest) ([]vaultdomain.Subscription, error) {
	merchant := strings.TrimSpace(req.Merchant)
	if merchant == "" {
		return nil, vaultdomain.ErrInvalidArguments
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	return s.repo.ListByMerchant(ctx, s.db, merchant, req.StartID, limit)
}

func (s *Service) ListDueSubscriptionIDs(ctx context.Context, limit int) ([]uint32, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.repo.ListDueIDs(ctx, s.db, s.clock.Now().Unix(), limit)
}
