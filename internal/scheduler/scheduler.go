// Package scheduler drives interval billing: it periodically collects due
// subscriptions and feeds them through the batch charge path.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/subvault/internal/authorization"
	"github.com/smallbiznis/subvault/internal/clock"
	obsmetrics "github.com/smallbiznis/subvault/internal/observability/metrics"
	vaultdomain "github.com/smallbiznis/subvault/internal/vault/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobChargeDue = "charge_due"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	VaultSvc vaultdomain.Service
	AuthzSvc authorization.Service
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	vaultSvc vaultdomain.Service
	authzSvc authorization.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.VaultSvc == nil || p.AuthzSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		vaultSvc: p.VaultSvc,
		authzSvc: p.AuthzSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	m := obsmetrics.Default()
	m.RecordJobRun(name)

	err := fn(ctx)
	m.ObserveJobDuration(name, time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		m.RecordJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	m.RecordJobError(name, jobErrorReason(err))
	return fmt.Errorf("%s: %w", name, err)
}

func jobErrorReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return obsmetrics.JobErrorReasonDeadlineExceeded
	case errors.Is(err, authorization.ErrForbidden), errors.Is(err, vaultdomain.ErrUnauthorized):
		return obsmetrics.JobErrorReasonForbidden
	default:
		return obsmetrics.JobErrorReasonUnknown
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	return s.runJob(parent, jobChargeDue, s.cfg.ChargeTimeout, s.ChargeDueJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ChargeDueJob drains the due-subscription backlog in batches. Per-item
// failures are expected outcomes of billing (insufficient funds flips the row
// out of the due set) and never abort the run.
func (s *Scheduler) ChargeDueJob(ctx context.Context) error {
	if err := s.authzSvc.Authorize(ctx, authorization.SystemActor, authorization.ObjectBilling, authorization.ActionBillingBatchCharge); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		ids, err := s.vaultSvc.ListDueSubscriptionIDs(ctx, s.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, vaultdomain.ErrNotConfigured) || errors.Is(err, vaultdomain.ErrVaultStopped) {
				return nil
			}
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		results, err := s.vaultSvc.BatchCharge(ctx, vaultdomain.BatchChargeRequest{
			Actor:           vaultdomain.SystemActor,
			SubscriptionIDs: ids,
		})
		if err != nil {
			if errors.Is(err, vaultdomain.ErrVaultStopped) {
				return nil
			}
			return err
		}

		charged := 0
		for _, result := range results {
			if result.Success {
				charged++
			}
		}
		s.log.Info("charge batch processed",
			zap.Int("due", len(ids)),
			zap.Int("charged", charged),
		)

		if len(ids) < s.cfg.BatchSize {
			return nil
		}
	}
}
