package sweeper

import "go.uber.org/fx"

var Module = fx.Module("service.sweeper",
	fx.Provide(NewService, NewTask, NewScheduler),
	fx.Invoke(RegisterHandlers, StartScheduler),
)
