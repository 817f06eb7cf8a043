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
	"progression-engine/pkg/logger"
	"progression-engine/pkg/otelcol"
	"progression-engine/pkg/redis"
	"progression-engine/pkg/task"
	"progression-engine/services/challenge"
	"progression-engine/services/leaderboard"
	"progression-engine/services/ledger"
	"progression-engine/services/notification"
	"progression-engine/services/progression"
	sweep "progression-engine/services/task"
	"progression-engine/services/user"
)

// The worker consumes notification, leaderboard and challenge sweep tasks and
// schedules the daily challenge materialization.
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
		task.Server,
		clock.Module,
		gen.Module,
		featureflags.Module,
		progression.Module,

		user.Module,
		ledger.Module,
		challenge.Module,
		leaderboard.Module,
		leaderboard.Worker,
		notification.Module,
		notification.Worker,
		sweep.Module,
		sweep.Worker,
		fxLogger,
	}

	if secretmanager.Enabled() {
		opts = append(opts, secretmanager.Module)
	}
	if os.Getenv("OTEL_ADDR") != "" {
		opts = append(opts, otelcol.Module)
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
