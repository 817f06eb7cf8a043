package db

import (
	"progression-engine/pkg/config"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/plugin/prometheus"
)

const metricsRefreshSeconds = 15

// metricsConfig registers the pool collectors on the default registry only.
// The plugin's own listener and pusher stay off; /metrics on the API engine
// serves the default registry.
func metricsConfig(cfg *config.Config, dialect string) prometheus.Config {
	c := prometheus.Config{
		DBName:          cfg.Database.DBNAME,
		RefreshInterval: metricsRefreshSeconds,
		StartServer:     false,
	}
	if c.DBName == "" {
		c.DBName = dialect
	}

	switch dialect {
	case "mysql":
		c.MetricsCollector = []prometheus.MetricsCollector{
			&prometheus.MySQL{VariableNames: []string{"Threads_running", "Threads_connected"}},
		}
	case "postgres":
		c.MetricsCollector = []prometheus.MetricsCollector{
			&prometheus.Postgres{VariableNames: []string{"max_connections"}},
		}
	}
	return c
}

func Metric(db *gorm.DB, cfg *config.Config) error {
	if err := db.Use(prometheus.New(metricsConfig(cfg, db.Dialector.Name()))); err != nil {
		zap.L().Error("❌ Failed to register db metrics", zap.Error(err))
		return err
	}
	return nil
}
