package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	transferdomain "github.com/smallbiznis/subvault/internal/transfer/domain"
	"github.com/smallbiznis/subvault/internal/safemath"
	"go.uber.org/fx"
	"go.uber.org/zap"
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

func NewService(p Params) transferdomain.Service {
	return &Service{
		log:   p.Log.Named("transfer.service"),
		genID: p.GenID,
	}
}

func (s *Service) Transfer(ctx context.Context, db *gorm.DB, from, to string, amount safemath.Int128, memo string) error {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" || from == to {
		return transferdomain.ErrInvalidAccount
	}
	if amount.Sign() <= 0 {
		return transferdomain.ErrInvalidTransferAmount
	}

	id := s.genID.Generate()
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO vault_transfers (id, from_account, to_account, amount, memo, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id,
		from,
		to,
		amount,
		memo,
		time.Now().UTC(),
	).Error; err != nil {
		return err
	}

	s.log.Debug("transfer posted",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("amount", amount.String()),
		zap.String("memo", memo),
	)
	return nil
}
