package profiling

import (
	"context"
	"runtime"

	"progression-engine/pkg/config"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is only installed when PYROSCOPE_ADDR is set.
var Module = fx.Module("profiling",
	fx.Provide(NewConfig),
	fx.Invoke(Start),
)

// mutex and block sampling rates; row locks on users and habits show up there
const (
	mutexProfileFraction = 5
	blockProfileRate     = 5
)

func NewConfig(c *config.Config) pyroscope.Config {
	return pyroscope.Config{
		ApplicationName: c.AppName,
		ServerAddress:   c.Pyroscope.Addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
			pyroscope.ProfileMutexCount,
			pyroscope.ProfileMutexDuration,
			pyroscope.ProfileBlockCount,
			pyroscope.ProfileBlockDuration,
		},
		Tags: map[string]string{
			"service_name": c.AppName,
			"env":          c.AppEnv,
			"version":      c.AppVersion,
			"timezone":     c.Location().String(),
		},
	}
}

func Start(lc fx.Lifecycle, cfg pyroscope.Config) {
	var profiler *pyroscope.Profiler

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runtime.SetMutexProfileFraction(mutexProfileFraction)
			runtime.SetBlockProfileRate(blockProfileRate)

			p, err := pyroscope.Start(cfg)
			if err != nil {
				zap.L().Error("failed to start pyroscope", zap.String("pyroscope_addr", cfg.ServerAddress), zap.Error(err))
				return err
			}
			profiler = p
			zap.L().Info("pyroscope started", zap.String("app_name", cfg.ApplicationName), zap.String("pyroscope_addr", cfg.ServerAddress))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if profiler == nil {
				return nil
			}
			return profiler.Stop()
		},
	})
}
