package domain

import (
	"context"

	"github.com/smallbiznis/subvault/internal/safemath"
)

type CreateSubscriptionRequest struct {
	Subscriber      string          `json:"subscriber"`
	Merchant        string          `json:"merchant"`
	Amount          safemath.Int128 `json:"amount"`
	IntervalSeconds uint64          `json:"interval_seconds"`
	UsageEnabled    bool            `json:"usage_enabled"`
	ExpiresAt       *int64          `json:"expires_at,omitempty"`
	InitialDeposit  safemath.Int128 `json:"initial_deposit"`
}

type DepositRequest struct {
	SubscriptionID uint32          `json:"subscription_id"`
	Actor          string          `json:"-"`
	Amount         safemath.Int128 `json:"amount"`
}

type ChargeRequest struct {
	SubscriptionID uint32 `json:"subscription_id"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type ChargeUsageRequest struct {
	SubscriptionID uint32          `json:"subscription_id"`
	UsageAmount    safemath.Int128 `json:"usage_amount"`
}

type BatchChargeRequest struct {
	Actor           string   `json:"-"`
	SubscriptionIDs []uint32 `json:"subscription_ids"`
}

// BatchChargeResult is one per-id outcome of a batch charge, in input order.
// ErrorCode is 0 on success, otherwise a CodeOf value.
type BatchChargeResult struct {
	Success   bool   `json:"success"`
	ErrorCode uint32 `json:"error_code"`
}

type WithdrawRequest struct {
	Merchant string          `json:"-"`
	Amount   safemath.Int128 `json:"amount"`
}

type BatchWithdrawRequest struct {
	Merchant string            `json:"-"`
	Amounts  []safemath.Int128 `json:"amounts"`
}

// NextChargeInfo describes when the next interval charge is due. NextChargeAt
// saturates instead of wrapping when last payment plus interval overflows.
type NextChargeInfo struct {
	NextChargeAt     int64 `json:"next_charge_at"`
	IsChargeExpected bool  `json:"is_charge_expected"`
}

type ListByMerchantRequest struct {
	Merchant string
	StartID  uint32
	Limit    int
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	Deposit(ctx context.Context, req DepositRequest) (Subscription, error)
	Pause(ctx context.Context, id uint32, actor string) error
	Resume(ctx context.Context, id uint32, actor string) error
	// Cancel refunds the remaining prepaid balance to the subscriber and
	// returns the refunded amount.
	Cancel(ctx context.Context, id uint32, actor string) (safemath.Int128, error)

	ChargeOne(ctx context.Context, req ChargeRequest) error
	ChargeUsage(ctx context.Context, req ChargeUsageRequest) error
	BatchCharge(ctx context.Context, req BatchChargeRequest) ([]BatchChargeResult, error)

	WithdrawMerchantFunds(ctx context.Context, req WithdrawRequest) error
	BatchWithdrawMerchantFunds(ctx context.Context, req BatchWithdrawRequest) ([]BatchChargeResult, error)
	GetMerchantBalance(ctx context.Context, merchant string) (safemath.Int128, error)

	GetSubscription(ctx context.Context, id uint32) (Subscription, error)
	GetSubscriptionCount(ctx context.Context) (uint64, error)
	GetMerchantSubscriptionCount(ctx context.Context, merchant string) (int64, error)
	NextChargeInfo(ctx context.Context, id uint32) (NextChargeInfo, error)
	EstimateTopupForIntervals(ctx context.Context, id uint32, intervals uint32) (safemath.Int128, error)
	ListByMerchant(ctx context.Context, req ListByMerchantRequest) ([]Subscription, error)
	// ListDueSubscriptionIDs returns ids whose interval has elapsed at now,
	// for the billing runner to feed into BatchCharge.
	ListDueSubscriptionIDs(ctx context.Context, limit int) ([]uint32, error)
}
