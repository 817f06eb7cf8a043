package notification

import (
	"progression-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("notification.service",
	fx.Provide(
		NewService,
		fx.Annotate(NewDispatcher, fx.As(new(Notifier))),
	),
)

var Gateway = fx.Module("notification.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

// Worker consumes notification:send.
var Worker = fx.Module("notification.worker",
	fx.Invoke(func(mux *asynq.ServeMux, s *Service) {
		mux.HandleFunc(taskname.NotificationSend, s.HandleSend)
	}),
)
