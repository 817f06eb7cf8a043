package bootstrap

import (
	"context"
	"testing"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/services/achievement"
	"progression-engine/services/ledger"
	"progression-engine/services/progression"
	"progression-engine/services/testutil"
	"progression-engine/services/user"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMigrateCreatesSchemaAndSeeds(t *testing.T) {
	db := testutil.NewTestDB(t)
	node := testutil.NewNode(t)
	fc := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	users := user.NewService(user.ServiceParams{DB: db, Calendar: progression.NewCalendar(time.UTC, fc)})
	ledgers := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Clock: fc, Users: users})
	achievements, err := achievement.NewService(achievement.ServiceParams{DB: db, Node: node, Clock: fc, Ledger: ledgers})
	require.NoError(t, err)

	svc := NewService(ServiceParams{DB: db, Achievements: achievements})
	require.NoError(t, svc.Migrate(context.Background()))
	// a second boot is a no-op
	require.NoError(t, svc.Migrate(context.Background()))

	for _, m := range Models() {
		require.True(t, db.Migrator().HasTable(m), "%T", m)
	}

	var count int64
	require.NoError(t, db.Model(&achievement.Achievement{}).Count(&count).Error)
	require.Equal(t, int64(len(achievement.Definitions())), count)
}
