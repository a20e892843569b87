package service

import (
	"context"
	"fmt"
	"strings"

	admindomain "github.com/smallbiznis/subvault/internal/admin/domain"
	auditdomain "github.com/smallbiznis/subvault/internal/audit/domain"
	eventdomain "github.com/smallbiznis/subvault/internal/billingevent/domain"
	"github.com/smallbiznis/subvault/internal/config"
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
	Config   config.Config
	Settings vaultdomain.SettingRepository
	Transfer transferdomain.Service
	Events   eventdomain.Sink
	AuditSvc auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	settings vaultdomain.SettingRepository
	transfer transferdomain.Service
	events   eventdomain.Sink
	auditSvc auditdomain.Service
}

func NewService(p Params) admindomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("admin.service"),
		cfg:      p.Config,
		settings: p.Settings,
		transfer: p.Transfer,
		events:   p.Events,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Bootstrap(ctx context.Context) error {
	setting, err := s.settings.Find(ctx, s.db)
	if err != nil {
		return err
	}
	if setting != nil {
		return nil
	}

	admin := strings.TrimSpace(s.cfg.AdminPrincipal)
	if admin == "" {
		return vaultdomain.ErrInvalidConfig
	}
	minTopup, err := safemath.Parse(s.cfg.MinTopup)
	if err != nil || minTopup.Sign() <= 0 {
		return vaultdomain.ErrInvalidConfig
	}

	if err := s.settings.Insert(ctx, s.db, &vaultdomain.VaultSetting{
		Admin:              admin,
		MinTopup:           minTopup,
		Stopped:            false,
		NextSubscriptionID: 0,
	}); err != nil {
		return err
	}

	s.log.Info("vault settings bootstrapped", zap.String("min_topup", minTopup.String()))
	return nil
}

// requireAdmin loads the settings row and checks the actor against the stored
// admin identity.
func (s *Service) requireAdmin(ctx context.Context, db *gorm.DB, actor string) (*vaultdomain.VaultSetting, error) {
	setting, err := s.settings.FindForUpdate(ctx, db)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return nil, vaultdomain.ErrNotConfigured
	}
	if strings.TrimSpace(actor) != setting.Admin {
		return nil, vaultdomain.ErrNotAdmin
	}
	return setting, nil
}

func (s *Service) GetAdmin(ctx context.Context) (string, error) {
	setting, err := s.settings.Find(ctx, s.db)
	if err != nil {
		return "", err
	}
	if setting == nil {
		return "", vaultdomain.ErrNotConfigured
	}
	return setting.Admin, nil
}

// RotateAdmin hands control to a new principal immediately. The change is
// audited with both identities.
func (s *Service) RotateAdmin(ctx context.Context, actor string, newAdmin string) error {
	newAdmin = strings.TrimSpace(newAdmin)
	if newAdmin == "" {
		return vaultdomain.ErrInvalidArguments
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.requireAdmin(ctx, tx, actor)
		if err != nil {
			return err
		}

		previous := setting.Admin
		if previous == newAdmin {
			return nil
		}

		setting.Admin = newAdmin
		if err := s.settings.Update(ctx, tx, setting); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, eventdomain.EventVaultAdminRotated, map[string]any{
			"previous_admin": previous,
			"new_admin":      newAdmin,
		}, ""); err != nil {
			return err
		}

		return s.auditSvc.AuditLog(ctx, actor, "vault.admin_rotated", "vault", nil, map[string]any{
			"previous_admin": previous,
			"new_admin":      newAdmin,
		})
	})
}

func (s *Service) GetMinTopup(ctx context.Context) (safemath.Int128, error) {
	setting, err := s.settings.Find(ctx, s.db)
	if err != nil {
		return safemath.Int128{}, err
	}
	if setting == nil {
		return safemath.Int128{}, vaultdomain.ErrNotConfigured
	}
	return setting.MinTopup, nil
}

func (s *Service) SetMinTopup(ctx context.Context, actor string, amount safemath.Int128) error {
	if amount.Sign() <= 0 {
		return vaultdomain.ErrInvalidConfig
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.requireAdmin(ctx, tx, actor)
		if err != nil {
			return err
		}

		setting.MinTopup = amount
		if err := s.settings.Update(ctx, tx, setting); err != nil {
			return err
		}

		return s.events.Emit(ctx, tx, eventdomain.EventVaultMinTopupUpdated, map[string]any{
			"min_topup": amount.String(),
		}, "")
	})
}

func (s *Service) IsStopped(ctx context.Context) (bool, error) {
	setting, err := s.settings.Find(ctx, s.db)
	if err != nil {
		return false, err
	}
	if setting == nil {
		return false, vaultdomain.ErrNotConfigured
	}
	return setting.Stopped, nil
}

func (s *Service) EmergencyStop(ctx context.Context, actor string) error {
	return s.setStopped(ctx, actor, true, eventdomain.EventVaultStopped, "vault.emergency_stop")
}

func (s *Service) ResumeVault(ctx context.Context, actor string) error {
	return s.setStopped(ctx, actor, false, eventdomain.EventVaultResumed, "vault.resume")
}

func (s *Service) setStopped(ctx context.Context, actor string, stopped bool, eventType string, auditAction string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		setting, err := s.requireAdmin(ctx, tx, actor)
		if err != nil {
			return err
		}
		if setting.Stopped == stopped {
			return nil
		}

		setting.Stopped = stopped
		if err := s.settings.Update(ctx, tx, setting); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, eventType, map[string]any{
			"stopped": stopped,
		}, ""); err != nil {
			return err
		}

		return s.auditSvc.AuditLog(ctx, actor, auditAction, "vault", nil, nil)
	})
}

func (s *Service) RecoverStrandedFunds(ctx context.Context, req admindomain.RecoverRequest) error {
	recipient := strings.TrimSpace(req.Recipient)
	if recipient == "" {
		return vaultdomain.ErrInvalidArguments
	}
	if req.Amount.Sign() <= 0 {
		return vaultdomain.ErrInvalidRecoveryAmount
	}
	if !req.Reason.Valid() {
		return vaultdomain.ErrInvalidArguments
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.requireAdmin(ctx, tx, req.Actor); err != nil {
			return err
		}

		if err := s.transfer.Transfer(ctx, tx, s.cfg.VaultAccount, recipient, req.Amount, fmt.Sprintf("recovery:%s", req.Reason)); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, eventdomain.EventVaultRecovery, map[string]any{
			"recipient": recipient,
			"amount":    req.Amount.String(),
			"reason":    string(req.Reason),
		}, ""); err != nil {
			return err
		}

		return s.auditSvc.AuditLog(ctx, req.Actor, "vault.recovery", "vault", &recipient, map[string]any{
			"amount": req.Amount.String(),
			"reason": string(req.Reason),
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("stranded funds recovered",
		zap.String("recipient", recipient),
		zap.String("amount", req.Amount.String()),
		zap.String("reason", string(req.Reason)),
	)
	return nil
}
