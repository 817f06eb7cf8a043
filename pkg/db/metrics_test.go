package db

import (
	"testing"

	"progression-engine/pkg/config"

	"github.com/stretchr/testify/require"
	"gorm.io/plugin/prometheus"
)

func TestMetricsConfigStaysOnSharedRegistry(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.DBNAME = "progression"

	for _, dialect := range []string{"postgres", "mysql", "sqlite"} {
		c := metricsConfig(cfg, dialect)
		require.False(t, c.StartServer, dialect)
		require.Empty(t, c.PushAddr, dialect)
		require.Equal(t, "progression", c.DBName, dialect)
		require.Equal(t, uint32(metricsRefreshSeconds), c.RefreshInterval, dialect)
	}
}

func TestMetricsConfigCollectorsPerDialect(t *testing.T) {
	cfg := &config.Config{}

	require.Empty(t, metricsConfig(cfg, "sqlite").MetricsCollector)
	require.Equal(t, "sqlite", metricsConfig(cfg, "sqlite").DBName)

	mysqlCollectors := metricsConfig(cfg, "mysql").MetricsCollector
	require.Len(t, mysqlCollectors, 1)
	require.IsType(t, &prometheus.MySQL{}, mysqlCollectors[0])

	pgCollectors := metricsConfig(cfg, "postgres").MetricsCollector
	require.Len(t, pgCollectors, 1)
	require.IsType(t, &prometheus.Postgres{}, pgCollectors[0])
}
