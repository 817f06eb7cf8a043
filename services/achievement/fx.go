package achievement

import "go.uber.org/fx"

var Module = fx.Module("achievement.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("achievement.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)
