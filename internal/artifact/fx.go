package artifact

import (
	"github.com/astralhq/oraculum/internal/artifact/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("artifact.store",
	fx.Provide(repository.Provide),
)
