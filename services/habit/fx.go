package habit

import "go.uber.org/fx"

var Module = fx.Module("habit.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("habit.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)
