package logger

import (
	"os"
	"path/filepath"

	"progression-engine/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

func New(p ConfigParams) *zap.Logger {

	log := zap.Must(zap.NewDevelopment())
	if p.Cfg != nil && p.Cfg.AppEnv == "production" {
		log = zap.New(zapcore.NewTee(cores(p.Cfg)...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	} else if p.Cfg != nil && p.Cfg.Log.Path != "" {
		log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore(p.Cfg))
		}))
	}

	if p.Cfg != nil {
		log = log.With(
			zap.String("env", p.Cfg.AppEnv),
			zap.String("service_name", p.Cfg.AppName),
			zap.String("version", p.Cfg.AppVersion),
		)
	}

	zap.ReplaceGlobals(log)

	return log
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.StacktraceKey = "stacktrace"
	enc.LevelKey = "severity"
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	enc.CallerKey = "caller"
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	return enc
}

func level(cfg *config.Config) zapcore.Level {
	lvl, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func cores(cfg *config.Config) []zapcore.Core {
	out := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.Lock(os.Stdout), level(cfg)),
	}
	if cfg.Log.Path != "" {
		out = append(out, fileCore(cfg))
	}
	return out
}

// fileCore writes JSON lines to a size-rotated file.
func fileCore(cfg *config.Config) zapcore.Core {
	if dir := filepath.Dir(cfg.Log.Path); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.Log.Path,
		MaxSize:    nonZero(cfg.Log.MaxSizeMB, 100),
		MaxBackups: nonZero(cfg.Log.MaxBackups, 3),
		MaxAge:     nonZero(cfg.Log.MaxAgeDays, 7),
		Compress:   cfg.Log.Compress,
	}
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(lj), level(cfg))
}

func nonZero(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
