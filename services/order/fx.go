package order

import "go.uber.org/fx"

var Module = fx.Module("service.order",
	fx.Provide(NewService),
)
