package freeze

import "go.uber.org/fx"

var Module = fx.Module("freeze.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("freeze.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)
