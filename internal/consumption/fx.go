package consumption

import (
	"github.com/smallbiznis/homekeep/internal/consumption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consumption.service",
	fx.Provide(service.New),
)
