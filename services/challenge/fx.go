package challenge

import "go.uber.org/fx"

var Module = fx.Module("challenge.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("challenge.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)
