package voucher

import "go.uber.org/fx"

var Module = fx.Module("service.voucher",
	fx.Provide(NewService),
)
