package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/subvault/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}
}

func (s *Service) AuditLog(ctx context.Context, actor string, action string, targetType string, targetID *string, metadata map[string]any) error {
	action = strings.TrimSpace(action)
	if action == "" {
		return auditdomain.ErrInvalidAction
	}

	targetType = strings.TrimSpace(targetType)
	if targetType == "" {
		targetType = "unknown"
	}

	payload := map[string]any{}
	for key, value := range metadata {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO vault_audit_logs (id, actor, action, target_type, target_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		strings.TrimSpace(actor),
		action,
		targetType,
		targetID,
		datatypes.JSONMap(payload),
		time.Now().UTC(),
	).Error
	if err != nil {
		s.log.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
	return err
}

func (s *Service) Recent(ctx context.Context, limit int) ([]auditdomain.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var logs []auditdomain.AuditLog
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, actor, action, target_type, target_id, metadata, created_at
		 FROM vault_audit_logs
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
