package activity

import "go.uber.org/fx"

var Module = fx.Module("activity.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("activity.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)
