// Package domain defines the administrative surface of the vault: settings
// bootstrap, admin rotation, the emergency stop, and stranded-fund recovery.
package domain

import (
	"context"

	"github.com/smallbiznis/subvault/internal/safemath"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
)

type RecoverRequest struct {
	Actor     string                    `json:"-"`
	Recipient string                    `json:"recipient"`
	Amount    safemath.Int128           `json:"amount"`
	Reason    vaultdomain.RecoveryReason `json:"reason"`
}

type Service interface {
	// Bootstrap seeds the settings row on first start. Later changes live in
	// the database, not the environment.
	Bootstrap(ctx context.Context) error

	GetAdmin(ctx context.Context) (string, error)
	RotateAdmin(ctx context.Context, actor string, newAdmin string) error

	GetMinTopup(ctx context.Context) (safemath.Int128, error)
	SetMinTopup(ctx context.Context, actor string, amount safemath.Int128) error

	IsStopped(ctx context.Context) (bool, error)
	EmergencyStop(ctx context.Context, actor string) error
	ResumeVault(ctx context.Context, actor string) error

	// RecoverStrandedFunds moves value the vault holds but that belongs to no
	// live subscription. It is deliberately disjoint from the billing ledger:
	// no subscription or merchant record is touched.
	RecoverStrandedFunds(ctx context.Context, req RecoverRequest) error
}
