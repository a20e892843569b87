// Package authorization answers capability questions for vault operations.
// Ownership checks (an actor mutating their own subscription) stay in the
// vault service; this layer only decides whether a principal may reach an
// operation at all.
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/subvault/internal/audit/domain"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectSubscription = "subscription"
	ObjectMerchant     = "merchant"
	ObjectBilling      = "billing"
	ObjectVault        = "vault"
)

const (
	ActionSubscriptionCreate  = "subscription.create"
	ActionSubscriptionView    = "subscription.view"
	ActionSubscriptionDeposit = "subscription.deposit"
	ActionSubscriptionPause   = "subscription.pause"
	ActionSubscriptionResume  = "subscription.resume"
	ActionSubscriptionCancel  = "subscription.cancel"

	ActionMerchantWithdraw = "merchant.withdraw"
	ActionMerchantList     = "merchant.list"

	ActionBillingCharge      = "billing.charge"
	ActionBillingBatchCharge = "billing.batch_charge"
	ActionBillingChargeUsage = "billing.charge_usage"

	ActionVaultConfigure = "vault.configure"
	ActionVaultRotate    = "vault.rotate_admin"
	ActionVaultStop      = "vault.stop"
	ActionVaultRecover   = "vault.recover"
	ActionVaultAuditView = "vault.audit_view"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)

// SystemActor is the identity the billing runner authorizes as.
const SystemActor = vaultdomain.SystemActor

type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Settings vaultdomain.SettingRepository
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	settings vaultdomain.SettingRepository
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		settings: p.Settings,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	roleName, err := s.resolveRole(ctx, actor)
	if err != nil {
		return err
	}
	if err := s.ensureGrouping(actor, roleName); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actor, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actor, object, action)
	}
	return nil
}

// resolveRole maps a principal to its role. The admin identity lives in the
// settings row so admin rotation takes effect without restarting.
func (s *ServiceImpl) resolveRole(ctx context.Context, actor string) (string, error) {
	if actor == SystemActor {
		return "role:system", nil
	}

	setting, err := s.settings.Find(ctx, s.db)
	if err == nil && setting != nil && setting.Admin == actor {
		return "role:admin", nil
	}
	return "role:member", nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actor string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actor, "authorization.denied", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actor string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, actor, "authorization.granted", "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionVaultRotate, ActionVaultStop, ActionVaultRecover:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Member permissions: every authenticated principal may drive its own
		// subscriptions and merchant balance. Ownership is enforced downstream.
		{"role:member", ObjectSubscription, ActionSubscriptionCreate},
		{"role:member", ObjectSubscription, ActionSubscriptionView},
		{"role:member", ObjectSubscription, ActionSubscriptionDeposit},
		{"role:member", ObjectSubscription, ActionSubscriptionPause},
		{"role:member", ObjectSubscription, ActionSubscriptionResume},
		{"role:member", ObjectSubscription, ActionSubscriptionCancel},
		{"role:member", ObjectMerchant, ActionMerchantWithdraw},
		{"role:member", ObjectMerchant, ActionMerchantList},

		// System permissions for the billing runner.
		{"role:system", ObjectSubscription, ActionSubscriptionView},
		{"role:system", ObjectBilling, ActionBillingCharge},
		{"role:system", ObjectBilling, ActionBillingBatchCharge},
		{"role:system", ObjectBilling, ActionBillingChargeUsage},

		// Admin permissions.
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionPause},
		{"role:admin", ObjectSubscription, ActionSubscriptionResume},
		{"role:admin", ObjectSubscription, ActionSubscriptionCancel},
		{"role:admin", ObjectMerchant, ActionMerchantList},
		{"role:admin", ObjectBilling, ActionBillingCharge},
		{"role:admin", ObjectBilling, ActionBillingBatchCharge},
		{"role:admin", ObjectBilling, ActionBillingChargeUsage},
		{"role:admin", ObjectVault, ActionVaultConfigure},
		{"role:admin", ObjectVault, ActionVaultRotate},
		{"role:admin", ObjectVault, ActionVaultStop},
		{"role:admin", ObjectVault, ActionVaultRecover},
		{"role:admin", ObjectVault, ActionVaultAuditView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer, NewService),
)
