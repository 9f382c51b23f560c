package catalog

import "go.uber.org/fx"

var Module = fx.Module("service.catalog",
	fx.Provide(NewService),
)
