package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	eventdomain "github.com/smallbiznis/subvault/internal/billingevent/domain"
	"github.com/smallbiznis/subvault/internal/observability/metrics"
	"github.com/smallbiznis/subvault/internal/safemath"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"gorm.io/gorm"
)

// ChargeOne settles one billing period for a subscription. Gate order:
// stopped, existence, status, expiration, replay, interval, balance. Every
// gate short-circuits without touching the record except the balance gate,
// which persists the sticky ACTIVE -> INSUFFICIENT_BALANCE transition while
// leaving the balance itself untouched.
func (s *Service) ChargeOne(ctx context.Context, req vaultdomain.ChargeRequest) error {
	var sticky error
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chargeErr := s.chargeOneTx(ctx, tx, req)
		if errors.Is(chargeErr, vaultdomain.ErrInsufficientBalance) {
			// The status transition must commit even though the charge failed.
			sticky = chargeErr
			return nil
		}
		return chargeErr
	})
	if err == nil {
		err = sticky
	}

	s.metrics.RecordCharge(chargeResultLabel(err))
	return err
}

func (s *Service) chargeOneTx(ctx context.Context, tx *gorm.DB, req vaultdomain.ChargeRequest) error {
	if _, err := s.loadSettings(ctx, tx); err != nil {
		return err
	}

	sub, err := s.repo.FindByIDForUpdate(ctx, tx, req.SubscriptionID)
	if err != nil {
		return err
	}
	if sub == nil {
		return vaultdomain.ErrNotFound
	}
	if sub.Status != vaultdomain.StatusActive {
		return vaultdomain.ErrNotActive
	}

	now := s.clock.Now().Unix()
	if sub.Expired(now) {
		return vaultdomain.ErrSubscriptionExpired
	}

	// Replay gate before the interval gate: a retry carrying the same
	// idempotency key, or landing on an already-settled instant, must report
	// Replay rather than IntervalNotElapsed.
	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		receipt, err := s.repo.FindReceiptByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if receipt != nil {
			return vaultdomain.ErrReplay
		}
	}
	receipt, err := s.repo.FindReceiptByInstant(ctx, tx, sub.ID, now)
	if err != nil {
		return err
	}
	if receipt != nil {
		return vaultdomain.ErrReplay
	}

	due, ok := nextChargeAt(sub.LastPaymentAt, sub.IntervalSeconds)
	if !ok || now < due {
		return vaultdomain.ErrIntervalNotElapsed
	}

	if sub.PrepaidBalance.Cmp(sub.Amount) < 0 {
		if err := vaultdomain.ValidateStatusTransition(sub.Status, vaultdomain.StatusInsufficientBalance); err != nil {
			return err
		}
		sub.Status = vaultdomain.StatusInsufficientBalance
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		return vaultdomain.ErrInsufficientBalance
	}

	periodStart := sub.LastPaymentAt
	balance, err := safemath.SafeSubBalance(sub.PrepaidBalance, sub.Amount)
	if err != nil {
		return err
	}
	sub.PrepaidBalance = balance
	sub.LastPaymentAt = now
	if err := s.repo.Update(ctx, tx, sub); err != nil {
		return err
	}

	if err := s.creditMerchant(ctx, tx, sub.Merchant, sub.Amount); err != nil {
		return err
	}
	if err := s.transfer.Transfer(ctx, tx, s.vaultAccount, merchantPoolAccount(sub.Merchant), sub.Amount, fmt.Sprintf("charge:%d", sub.ID)); err != nil {
		return err
	}

	var keyPtr *string
	if key != "" {
		keyPtr = &key
	}
	if err := s.repo.InsertReceipt(ctx, tx, &vaultdomain.ChargeReceipt{
		ID:             s.genID.Generate(),
		SubscriptionID: sub.ID,
		PeriodStart:    periodStart,
		ChargedAt:      now,
		IdempotencyKey: keyPtr,
		Amount:         sub.Amount,
		CreatedAt:      time.Now().UTC(),
	}); err != nil {
		return err
	}

	return s.events.Emit(ctx, tx, eventdomain.EventSubscriptionCharged, map[string]any{
		"subscription_id": sub.ID,
		"merchant":        sub.Merchant,
		"amount":          sub.Amount.String(),
		"charged_at":      now,
		"balance":         sub.PrepaidBalance.String(),
	}, fmt.Sprintf("subscription.charged:%d:%d", sub.ID, now))
}

func (s *Service) creditMerchant(ctx context.Context, tx *gorm.DB, merchant string, amount safemath.Int128) error {
	balance, err := s.repo.FindMerchantBalanceForUpdate(ctx, tx, merchant)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = &vaultdomain.MerchantBalance{
			Merchant: merchant,
			Balance:  safemath.FromInt64(0),
		}
	}

	credited, err := safemath.SafeAddBalance(balance.Balance, amount)
	if err != nil {
		return err
	}
	balance.Balance = credited
	return s.repo.UpsertMerchantBalance(ctx, tx, balance)
}

// ChargeUsage debits a metered amount against the prepaid balance. It never
// touches LastPaymentAt; draining the balance to exactly zero transitions the
// subscription to INSUFFICIENT_BALANCE just like a failed interval charge.
func (s *Service) ChargeUsage(ctx context.Context, req vaultdomain.ChargeUsageRequest) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadSettings(ctx, tx); err != nil {
			return err
		}

		sub, err := s.repo.FindByIDForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return vaultdomain.ErrNotFound
		}
		if sub.Status != vaultdomain.StatusActive {
			return vaultdomain.ErrNotActive
		}
		if !sub.UsageEnabled {
			return vaultdomain.ErrUsageNotEnabled
		}
		if req.UsageAmount.Sign() <= 0 {
			return vaultdomain.ErrInvalidAmount
		}
		if req.UsageAmount.Cmp(sub.PrepaidBalance) > 0 {
			return vaultdomain.ErrInsufficientPrepaidBalance
		}

		balance, err := safemath.SafeSubBalance(sub.PrepaidBalance, req.UsageAmount)
		if err != nil {
			return err
		}
		sub.PrepaidBalance = balance

		if sub.PrepaidBalance.IsZero() {
			if err := vaultdomain.ValidateStatusTransition(sub.Status, vaultdomain.StatusInsufficientBalance); err != nil {
				return err
			}
			sub.Status = vaultdomain.StatusInsufficientBalance
		}

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, eventdomain.EventSubscriptionCharged, map[string]any{
			"subscription_id": sub.ID,
			"kind":            "usage",
			"amount":          req.UsageAmount.String(),
			"balance":         sub.PrepaidBalance.String(),
		}, "")
	})

	if err == nil {
		s.metrics.RecordUsageCharge(metrics.ChargeResultSuccess)
	} else {
		s.metrics.RecordUsageCharge(chargeResultLabel(err))
	}
	return err
}

// BatchCharge fans ChargeOne out over an ordered id list with per-item
// isolation. One authorization covers the whole call; duplicates are allowed
// and settle at most once per billing period.
func (s *Service) BatchCharge(ctx context.Context, req vaultdomain.BatchChargeRequest) ([]vaultdomain.BatchChargeResult, error) {
	setting, err := s.settings.Find(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, vaultdomain.ErrNotConfigured
	}

	actor := strings.TrimSpace(req.Actor)
	if actor != vaultdomain.SystemActor && actor != setting.Admin {
		return nil, vaultdomain.ErrUnauthorized
	}

	s.metrics.ObserveBatchSize(len(req.SubscriptionIDs))

	results := make([]vaultdomain.BatchChargeResult, 0, len(req.SubscriptionIDs))
	for _, id := range req.SubscriptionIDs {
		chargeErr := s.ChargeOne(ctx, vaultdomain.ChargeRequest{SubscriptionID: id})
		results = append(results, vaultdomain.BatchChargeResult{
			Success:   chargeErr == nil,
			ErrorCode: vaultdomain.CodeOf(chargeErr),
		})
	}
	return results, nil
}

// nextChargeAt computes lastPaymentAt + intervalSeconds, reporting !ok when
// the sum does not fit a signed 64-bit timestamp.
func nextChargeAt(lastPaymentAt int64, intervalSeconds uint64) (int64, bool) {
	if intervalSeconds > math.MaxInt64 {
		return 0, false
	}
	interval := int64(intervalSeconds)
	if lastPaymentAt > math.MaxInt64-interval {
		return 0, false
	}
	return lastPaymentAt + interval, true
}

func chargeResultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ChargeResultSuccess
	case errors.Is(err, vaultdomain.ErrInsufficientBalance),
		errors.Is(err, vaultdomain.ErrInsufficientPrepaidBalance):
		return metrics.ChargeResultInsufficientBalance
	case errors.Is(err, vaultdomain.ErrIntervalNotElapsed):
		return metrics.ChargeResultIntervalNotElapsed
	case errors.Is(err, vaultdomain.ErrReplay):
		return metrics.ChargeResultReplay
	case errors.Is(err, vaultdomain.ErrNotActive):
		return metrics.ChargeResultNotActive
	case errors.Is(err, vaultdomain.ErrSubscriptionExpired):
		return metrics.ChargeResultExpired
	case errors.Is(err, vaultdomain.ErrNotFound):
		return metrics.ChargeResultNotFound
	case errors.Is(err, vaultdomain.ErrVaultStopped):
		return metrics.ChargeResultStopped
	default:
		return metrics.ChargeResultError
	}
}
