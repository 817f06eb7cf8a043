package task

import (
	"progression-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
	),
)

// Worker registers the sweep handlers on the asynq mux and runs the daily scheduler.
var Worker = fx.Module("task.worker",
	fx.Provide(NewScheduler),
	fx.Invoke(registerHandlers, StartScheduler),
)

func registerHandlers(mux *asynq.ServeMux, s *Service) {
	mux.HandleFunc(taskname.ChallengeMaterialize, s.HandleMaterialize)
}
