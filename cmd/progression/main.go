package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/config"
	"progression-engine/pkg/db"
	"progression-engine/pkg/featureflags"
	"progression-engine/pkg/gen"
	"progression-engine/pkg/hashistack/secretmanager"
	"progression-engine/pkg/health"
	"progression-engine/pkg/httpapi"
	"progression-engine/pkg/logger"
	"progression-engine/pkg/otelcol"
	"progression-engine/pkg/profiling"
	"progression-engine/pkg/redis"
	"progression-engine/pkg/server"
	"progression-engine/pkg/task"
	"progression-engine/services/achievement"
	"progression-engine/services/activity"
	"progression-engine/services/bootstrap"
	"progression-engine/services/challenge"
	"progression-engine/services/freeze"
	"progression-engine/services/habit"
	"progression-engine/services/leaderboard"
	"progression-engine/services/ledger"
	"progression-engine/services/notification"
	"progression-engine/services/orchestrator"
	"progression-engine/services/progression"
	sweep "progression-engine/services/task"
	"progression-engine/services/user"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("failed to load .env: %v", err)
	}

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		clock.Module,
		gen.Module,
		featureflags.Module,
		health.Module,
		progression.Module,
		httpapi.Module,

		user.Module,
		ledger.Module,
		ledger.Gateway,
		habit.Module,
		habit.Gateway,
		freeze.Module,
		freeze.Gateway,
		challenge.Module,
		challenge.Gateway,
		achievement.Module,
		achievement.Gateway,
		leaderboard.Module,
		leaderboard.Gateway,
		notification.Module,
		notification.Gateway,
		orchestrator.Module,
		orchestrator.Gateway,
		activity.Module,
		activity.Gateway,
		sweep.Module,
		bootstrap.Module,

		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}
	if os.Getenv("OTEL_ADDR") != "" {
		opts = append(opts, otelcol.Module)
	}
	if os.Getenv("PYROSCOPE_ADDR") != "" {
		opts = append(opts, profiling.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.AppEnv == "development" {
		return &fxevent.ZapLogger{Logger: logger}
	}
	return fxevent.NopLogger
})
