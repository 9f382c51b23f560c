package wallet

import "go.uber.org/fx"

var Module = fx.Module("service.wallet",
	fx.Provide(NewService),
)
