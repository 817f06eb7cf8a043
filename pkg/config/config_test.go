package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLATFORM_TIMEZONE", "Asia/Jakarta")
	t.Setenv("PROGRESSION_FREEZE_PRICE", "75")

	cfg := LoadConfig(Params{})

	require.Equal(t, "sqlite", cfg.Database.Type)
	require.Equal(t, int64(75), cfg.Progression.FreezePrice)
	require.Equal(t, 1, cfg.Progression.FreezeCap)
	require.Equal(t, 3, cfg.Progression.ChallengesPerDay)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, "Asia/Jakarta", cfg.Location().String())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	var cfg Config
	require.Equal(t, time.UTC, cfg.Location())

	cfg.Platform.Timezone = "Mars/Olympus_Mons"
	require.Equal(t, time.UTC, cfg.Location())

	var nilCfg *Config
	require.Equal(t, time.UTC, nilCfg.Location())
}
