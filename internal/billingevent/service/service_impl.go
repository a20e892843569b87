package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/subvault/internal/billingevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) eventdomain.Sink {
	return &Service{
		log:   p.Log.Named("billingevent.service"),
		genID: p.GenID,
	}
}

func (s *Service) Emit(ctx context.Context, db *gorm.DB, eventType string, payload map[string]any, dedupeKey string) error {
	var key *string
	if trimmed := strings.TrimSpace(dedupeKey); trimmed != "" {
		key = &trimmed
	}

	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (id, event_type, payload, dedupe_key, published, created_at)
		 VALUES (?, ?, ?, ?, false, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		s.genID.Generate(),
		eventType,
		datatypes.JSONMap(payload),
		key,
		time.Now().UTC(),
	).Error
}
