package orchestrator

import "go.uber.org/fx"

var Module = fx.Module("orchestrator.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("orchestrator.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)
