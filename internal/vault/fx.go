package vault

import (
	"github.com/smallbiznis/subvault/internal/vault/repository"
	"github.com/smallbiznis/subvault/internal/vault/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vault.service",
	fx.Provide(
		repository.Provide,
		repository.ProvideSettingRepository,
		service.NewService,
	),
)
