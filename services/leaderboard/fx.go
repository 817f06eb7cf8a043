package leaderboard

import (
	"progression-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("leaderboard.service",
	fx.Provide(NewService),
)

var Gateway = fx.Module("leaderboard.gateway",
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

var Worker = fx.Module("leaderboard.worker",
	fx.Invoke(func(mux *asynq.ServeMux, s *Service) {
		mux.HandleFunc(taskname.LeaderboardRebuild, s.HandleRebuild)
	}),
)
