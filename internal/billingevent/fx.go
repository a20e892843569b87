package billingevent

import (
	"github.com/smallbiznis/subvault/internal/billingevent/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billingevent.service",
	fx.Provide(service.NewService),
)
