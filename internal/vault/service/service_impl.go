// Package service implements the subscription vault: lifecycle mutations, the
// charge engine, merchant settlement, and read-only projections.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/subvault/internal/billingevent/domain"
	"github.com/smallbiznis/subvault/internal/clock"
	"github.com/smallbiznis/subvault/internal/config"
	"github.com/smallbiznis/subvault/internal/observability/metrics"
	"github.com/smallbiznis/subvault/internal/safemath"
	transferdomain "github.com/smallbiznis/subvault/internal/transfer/domain"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     vaultdomain.Repository
	Settings vaultdomain.SettingRepository
	Transfer transferdomain.Service
	Events   eventdomain.Sink
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     vaultdomain.Repository
	settings vaultdomain.SettingRepository
	transfer transferdomain.Service
	events   eventdomain.Sink
	metrics  *metrics.Metrics

	// vaultAccount holds pooled prepaid funds on the transfer ledger.
	vaultAccount string
}

func NewService(p Params) vaultdomain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("vault.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		repo:         p.Repo,
		settings:     p.Settings,
		transfer:     p.Transfer,
		events:       p.Events,
		metrics:      p.Metrics,
		vaultAccount: p.Config.VaultAccount,
	}
}

// merchantPoolAccount is the ledger account that accumulates settled charges
// for one merchant until withdrawal.
func merchantPoolAccount(merchant string) string {
	return "merchant:" + merchant
}

// loadSettings fetches the settings row and applies the emergency-stop gate.
func (s *Service) loadSettings(ctx context.Context, db *gorm.DB) (*vaultdomain.VaultSetting, error) {
	setting, err := s.settings.Find(ctx, db)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, vaultdomain.ErrNotConfigured
	}
	if setting.Stopped {
		return nil, vaultdomain.ErrVaultStopped
	}
	return setting, nil
}

// mayActFor reports whether actor may mutate a subscription owned by owner.
// The admin may act on any subscription; an empty actor means the caller was
// already authorized out of band (internal callers).
func mayActFor(actor, owner string, setting *vaultdomain.VaultSetting) bool {
	if actor == "" || actor == owner {
		return true
	}
	return setting != nil && actor == setting.Admin
}

func (s *Service) Create(ctx context.Context, req vaultdomain.CreateSubscriptionRequest) (vaultdomain.Subscription, error) {
	subscriber := strings.TrimSpace(req.Subscriber)
	merchant := strings.TrimSpace(req.Merchant)
	if subscriber == "" || merchant == "" || subscriber == merchant {
		return vaultdomain.Subscription{}, vaultdomain.ErrInvalidArguments
	}
	if req.Amount.Sign() <= 0 {
		return vaultdomain.Subscription{}, vaultdomain.ErrInvalidAmount
	}
	if req.IntervalSeconds == 0 {
		return vaultdomain.Subscription{}, vaultdomain.ErrInvalidInterval
	}
	if req.InitialDeposit.Sign() < 0 {
		return vaultdomain.Subscription{}, vaultdomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	if req.ExpiresAt != nil && *req.ExpiresAt <= now.Unix() {
		return vaultdomain.Subscription{}, vaultdomain.ErrInvalidArguments
	}

	var subscription vaultdomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.settings.FindForUpdate(ctx, tx)
		if err != nil {
			return err
		}
		if setting == nil {
			return vaultdomain.ErrNotConfigured
		}
		if setting.Stopped {
			return vaultdomain.ErrVaultStopped
		}

		if req.InitialDeposit.Sign() > 0 && req.InitialDeposit.Cmp(setting.MinTopup) < 0 {
			return vaultdomain.ErrBelowMinimumTopup
		}

		// Id allocation comes before every other side effect so a limit
		// failure never leaves partially-created state.
		id, err := s.settings.AllocateID(ctx, tx)
		if err != nil {
			return err
		}

		subscription = vaultdomain.Subscription{
			ID:              id,
			Subscriber:      subscriber,
			Merchant:        merchant,
			Amount:          req.Amount,
			IntervalSeconds: req.IntervalSeconds,
			LastPaymentAt:   now.Unix(),
			Status:          vaultdomain.StatusActive,
			PrepaidBalance:  safemath.FromInt64(0),
			UsageEnabled:    req.UsageEnabled,
			ExpiresAt:       req.ExpiresAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		if req.InitialDeposit.Sign() > 0 {
			balance, err := safemath.SafeAddBalance(subscription.PrepaidBalance, req.InitialDeposit)
			if err != nil {
				return err
			}
			subscription.PrepaidBalance = balance
			if err := s.transfer.Transfer(ctx, tx, subscriber, s.vaultAccount, req.InitialDeposit, fmt.Sprintf("deposit:%d", id)); err != nil {
				return err
			}
		}

		if err := s.repo.Insert(ctx, tx, &subscription); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, eventdomain.EventSubscriptionCreated, map[string]any{
			"subscription_id": id,
			"subscriber":      subscriber,
			"merchant":        merchant,
			"amount":          subscription.Amount.String(),
		}, fmt.Sprintf("subscription.created:%d", id))
	})
	if err != nil {
		return vaultdomain.Subscription{}, err
	}

	s.log.Info("subscription created",
		zap.Uint32("subscription_id", subscription.ID),
		zap.String("merchant", merchant),
	)
	return subscription, nil
}

func (s *Service) Deposit(ctx context.Context, req vaultdomain.DepositRequest) (vaultdomain.Subscription, error) {
	if req.Amount.Sign() <= 0 {
		return vaultdomain.Subscription{}, vaultdomain.ErrInvalidAmount
	}

	var subscription vaultdomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}
		if req.Amount.Cmp(setting.MinTopup) < 0 {
			return vaultdomain.ErrBelowMinimumTopup
		}

		sub, err := s.repo.FindByIDForUpdate(ctx, tx, req.SubscriptionID)
		if err != nil {
			return err
		}
		if sub == nil {
			return vaultdomain.ErrNotFound
		}
		if !mayActFor(req.Actor, sub.Subscriber, setting) {
			return vaultdomain.ErrUnauthorized
		}
		if sub.Status == vaultdomain.StatusCancelled {
			return vaultdomain.ErrInvalidStatusTransition
		}

		balance, err := safemath.SafeAddBalance(sub.PrepaidBalance, req.Amount)
		if err != nil {
			return err
		}
		sub.PrepaidBalance = balance

		// A deposit that covers at least one interval clears the sticky
		// insufficient-balance state.
		if sub.Status == vaultdomain.StatusInsufficientBalance && sub.PrepaidBalance.Cmp(sub.Amount) >= 0 {
			if err := vaultdomain.ValidateStatusTransition(sub.Status, vaultdomain.StatusActive); err != nil {
				return err
			}
			sub.Status = vaultdomain.StatusActive
		}

		if err := s.transfer.Transfer(ctx, tx, sub.Subscriber, s.vaultAccount, req.Amount, fmt.Sprintf("deposit:%d", sub.ID)); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}

		subscription = *sub
		return s.events.Emit(ctx, tx, eventdomain.EventFundsDeposited, map[string]any{
			"subscription_id": sub.ID,
			"amount":          req.Amount.String(),
			"balance":         sub.PrepaidBalance.String(),
		}, "")
	})
	if err != nil {
		return vaultdomain.Subscription{}, err
	}
	return subscription, nil
}

func (s *Service) Pause(ctx context.Context, id uint32, actor string) error {
	return s.transition(ctx, id, actor, vaultdomain.StatusPaused, eventdomain.EventSubscriptionPaused)
}

func (s *Service) Resume(ctx context.Context, id uint32, actor string) error {
	return s.transition(ctx, id, actor, vaultdomain.StatusActive, eventdomain.EventSubscriptionResumed)
}

// transition applies one subscriber-driven status change. A same-state request
// is a successful no-op and emits nothing.
func (s *Service) transition(ctx context.Context, id uint32, actor string, target vaultdomain.Status, eventType string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}

		sub, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return vaultdomain.ErrNotFound
		}
		if !mayActFor(actor, sub.Subscriber, setting) {
			return vaultdomain.ErrUnauthorized
		}
		if sub.Status == target {
			return nil
		}
		if err := vaultdomain.ValidateStatusTransition(sub.Status, target); err != nil {
			return err
		}

		sub.Status = target
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, eventType, map[string]any{
			"subscription_id": sub.ID,
			"status":          string(target),
		}, "")
	})
}

func (s *Service) Cancel(ctx context.Context, id uint32, actor string) (safemath.Int128, error) {
	var refund safemath.Int128
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.loadSettings(ctx, tx)
		if err != nil {
			return err
		}

		sub, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if sub == nil {
			return vaultdomain.ErrNotFound
		}
		if !mayActFor(actor, sub.Subscriber, setting) {
			return vaultdomain.ErrUnauthorized
		}
		if sub.Status == vaultdomain.StatusCancelled {
			return nil
		}
		if err := vaultdomain.ValidateStatusTransition(sub.Status, vaultdomain.StatusCancelled); err != nil {
			return err
		}

		refund = sub.PrepaidBalance
		if refund.Sign() > 0 {
			remaining, err := safemath.SafeSubBalance(sub.PrepaidBalance, refund)
			if err != nil {
				return err
			}
			sub.PrepaidBalance = remaining
			if err := s.transfer.Transfer(ctx, tx, s.vaultAccount, sub.Subscriber, refund, fmt.Sprintf("refund:%d", sub.ID)); err != nil {
				return err
			}
		}

		sub.Status = vaultdomain.StatusCancelled
		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, eventdomain.EventSubscriptionCancelled, map[string]any{
			"subscription_id": sub.ID,
			"refund":          refund.String(),
		}, fmt.Sprintf("subscription.cancelled:%d", sub.ID))
	})
	if err != nil {
		return safemath.Int128{}, err
	}
	return refund, nil
}

func (s *Service) WithdrawMerchantFunds(ctx context.Context, req vaultdomain.WithdrawRequest) error {
	err := s.withdraw(ctx, req.Merchant, req.Amount)
	if err == nil {
		s.metrics.RecordWithdrawal(metrics.ChargeResultSuccess)
	} else {
		s.metrics.RecordWithdrawal(metrics.ChargeResultError)
	}
	return err
}

func (s *Service) withdraw(ctx context.Context, merchant string, amount safemath.Int128) error {
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return vaultdomain.ErrInvalidArguments
	}
	if amount.Sign() <= 0 {
		return vaultdomain.ErrInvalidAmount
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.loadSettings(ctx, tx); err != nil {
			return err
		}

		balance, err := s.repo.FindMerchantBalanceForUpdate(ctx, tx, merchant)
		if err != nil {
			return err
		}
		if balance == nil || balance.Balance.Cmp(amount) < 0 {
			return vaultdomain.ErrInsufficientMerchantBalance
		}

		remaining, err := safemath.SafeSubBalance(balance.Balance, amount)
		if err != nil {
			return vaultdomain.ErrInsufficientMerchantBalance
		}
		balance.Balance = remaining

		if err := s.transfer.Transfer(ctx, tx, merchantPoolAccount(merchant), merchant, amount, "withdrawal"); err != nil {
			return err
		}
		if err := s.repo.UpsertMerchantBalance(ctx, tx, balance); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, eventdomain.EventMerchantWithdrawal, map[string]any{
			"merchant": merchant,
			"amount":   amount.String(),
			"balance":  balance.Balance.String(),
		}, "")
	})
}

// BatchWithdrawMerchantFunds processes each amount independently: one entry
// failing never blocks or rolls back another.
func (s *Service) BatchWithdrawMerchantFunds(ctx context.Context, req vaultdomain.BatchWithdrawRequest) ([]vaultdomain.BatchChargeResult, error) {
	results := make([]vaultdomain.BatchChargeResult, 0, len(req.Amounts))
	for _, amount := range req.Amounts {
		err := s.withdraw(ctx, req.Merchant, amount)
		results = append(results, vaultdomain.BatchChargeResult{
			Success:   err == nil,
			ErrorCode: vaultdomain.CodeOf(err),
		})
	}
	return results, nil
}

func (s *Service) GetMerchantBalance(ctx context.Context, merchant string) (safemath.Int128, error) {
	merchant = strings.TrimSpace(merchant)
	if merchant == "" {
		return safemath.Int128{}, vaultdomain.ErrInvalidArguments
	}

	balance, err := s.repo.FindMerchantBalance(ctx, s.db, merchant)
	if err != nil {
		return safemath.Int128{}, err
	}
	if balance == nil {
		return safemath.FromInt64(0), nil
	}
	return balance.Balance, nil
}
