package domain

import (
	"errors"

	"github.com/smallbiznis/subvault/internal/safemath"
)

var (
	ErrInvalidArguments            = errors.New("invalid_arguments")
	ErrUnauthorized                = errors.New("unauthorized")
	ErrInsufficientBalance         = errors.New("insufficient_balance")
	ErrNotAdmin                    = errors.New("not_admin")
	ErrNotFound                    = errors.New("not_found")
	ErrInvalidAmount               = errors.New("invalid_amount")
	ErrInvalidInterval             = errors.New("invalid_interval")
	ErrInvalidStatusTransition     = errors.New("invalid_status_transition")
	ErrBelowMinimumTopup           = errors.New("below_minimum_topup")
	ErrInsufficientMerchantBalance = errors.New("insufficient_merchant_balance")
	ErrSubscriptionLimitReached    = errors.New("subscription_limit_reached")
	ErrIntervalNotElapsed          = errors.New("interval_not_elapsed")
	ErrNotActive                   = errors.New("not_active")
	ErrSubscriptionExpired         = errors.New("subscription_expired")
	ErrReplay                      = errors.New("replay")
	ErrUsageNotEnabled             = errors.New("usage_not_enabled")
	ErrInsufficientPrepaidBalance  = errors.New("insufficient_prepaid_balance")
	ErrInvalidRecoveryAmount       = errors.New("invalid_recovery_amount")
	ErrVaultStopped                = errors.New("vault_stopped")
	ErrNotConfigured               = errors.New("not_configured")
	ErrInvalidConfig               = errors.New("invalid_config")
)

// CodeUnknown is reported for errors outside the business taxonomy.
const CodeUnknown uint32 = 500

// CodeOf maps business errors to their stable numeric codes. Batch callers
// depend on the numeric values, so the table is explicit and exhaustive rather
// than derived from declaration order. nil maps to 0.
func CodeOf(err error) uint32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidArguments):
		return 400
	case errors.Is(err, ErrUnauthorized):
		return 401
	case errors.Is(err, ErrInsufficientBalance):
		return 402
	case errors.Is(err, ErrNotAdmin):
		return 403
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrInvalidAmount):
		return 407
	case errors.Is(err, ErrInvalidInterval):
		return 408
	case errors.Is(err, ErrInvalidStatusTransition):
		return 409
	case errors.Is(err, ErrBelowMinimumTopup):
		return 410
	case errors.Is(err, ErrInsufficientMerchantBalance):
		return 411
	case errors.Is(err, ErrSubscriptionLimitReached):
		return 429
	case errors.Is(err, ErrIntervalNotElapsed):
		return 1001
	case errors.Is(err, ErrNotActive):
		return 1002
	case errors.Is(err, ErrSubscriptionExpired):
		return 1003
	case errors.Is(err, ErrReplay):
		return 1004
	case errors.Is(err, ErrUsageNotEnabled):
		return 1005
	case errors.Is(err, ErrInsufficientPrepaidBalance):
		return 1006
	case errors.Is(err, ErrInvalidRecoveryAmount):
		return 1007
	case errors.Is(err, ErrVaultStopped):
		return 1008
	case errors.Is(err, ErrNotConfigured):
		return 1101
	case errors.Is(err, ErrInvalidConfig):
		return 1102
	case errors.Is(err, safemath.ErrOverflow):
		return 1103
	case errors.Is(err, safemath.ErrUnderflow):
		return 1104
	default:
		return CodeUnknown
	}
}
