package expiry

import (
	"github.com/smallbiznis/homekeep/internal/expiry/repository"
	"github.com/smallbiznis/homekeep/internal/expiry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("expiry.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
