package inventory

import (
	inventorydomain "github.com/smallbiznis/homekeep/internal/inventory/domain"
	"github.com/smallbiznis/homekeep/internal/inventory/repository"
	"github.com/smallbiznis/homekeep/internal/inventory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("inventory.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(repo inventorydomain.Repository) inventorydomain.ConsumptionPatternStore { return repo }),
	fx.Provide(service.New),
)
