package divination

import (
	"github.com/astralhq/oraculum/internal/divination/service"
	"go.uber.org/fx"
)

var Module = fx.Module("divination.service",
	fx.Provide(service.New),
)
