package subscription

import (
	"github.com/astralhq/oraculum/internal/subscription/repository"
	"github.com/astralhq/oraculum/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
