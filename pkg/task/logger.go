package task

import "go.uber.org/zap"

// zapLogger routes asynq's internal logs through the global zap logger.
type zapLogger struct {
	log *zap.SugaredLogger
}

func newLogger() *zapLogger {
	return &zapLogger{log: zap.L().Named("asynq").Sugar()}
}

func (l *zapLogger) Debug(args ...any) { l.log.Debug(args...) }
func (l *zapLogger) Info(args ...any)  { l.log.Info(args...) }
func (l *zapLogger) Warn(args ...any)  { l.log.Warn(args...) }
func (l *zapLogger) Error(args ...any) { l.log.Error(args...) }
func (l *zapLogger) Fatal(args ...any) { l.log.Fatal(args...) }
