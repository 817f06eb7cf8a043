package activity

import (
	"context"
	"testing"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/services/achievement"
	"progression-engine/services/challenge"
	"progression-engine/services/habit"
	"progression-engine/services/ledger"
	"progression-engine/services/orchestrator"
	"progression-engine/services/progression"
	"progression-engine/services/testutil"
	"progression-engine/services/user"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t,
		&user.User{}, &ledger.Entry{},
		&habit.Habit{}, &habit.Completion{},
		&challenge.Set{}, &challenge.DailyChallenge{}, &challenge.Completion{},
		&achievement.Achievement{}, &achievement.UserAchievement{},
	)
	node := testutil.NewNode(t)
	fc := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	cal := progression.NewCalendar(time.UTC, fc)
	random := progression.FixedSource(0)

	cfg := &config.Config{}
	cfg.Progression.ClickReward = 2

	users := user.NewService(user.ServiceParams{DB: db, Calendar: cal})
	ledgers := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Clock: fc, Users: users})
	challenges := challenge.NewService(challenge.ServiceParams{
		DB: db, Node: node, Config: cfg, Calendar: cal, Random: random, Ledger: ledgers,
	})
	achievements, err := achievement.NewService(achievement.ServiceParams{DB: db, Node: node, Clock: fc, Ledger: ledgers})
	require.NoError(t, err)
	require.NoError(t, achievements.Seed(context.Background(), achievement.Definitions()))

	orch := orchestrator.NewService(orchestrator.Params{
		DB: db, Calendar: cal, Random: random,
		Users: users, Habits: habit.NewService(habit.ServiceParams{DB: db, Node: node}), Ledger: ledgers,
		Challenges: challenges, Achievements: achievements,
	})

	return NewService(ServiceParams{
		DB: db, Config: cfg, Calendar: cal, Users: users, Ledger: ledgers, Orchestrator: orch,
	}), db
}

func TestRecordClick(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	out, err := svc.RecordClick(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), out.PointsEarned)
	require.Equal(t, int64(2), out.Points)
	require.Empty(t, out.UnlockedAchievements)

	u, err := svc.users.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), u.Clicks)
	require.Equal(t, 1, u.StreakDays)
}

func TestRecordClickCrossesThreshold(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.RecordClick(ctx, "u-1")
	require.NoError(t, err)
	require.NoError(t, db.Model(&user.User{}).Where("id = ?", "u-1").Update("clicks", 99).Error)

	out, err := svc.RecordClick(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, out.UnlockedAchievements, 1)
	require.Equal(t, "clicks_100", out.UnlockedAchievements[0].ID)
	// two clicks plus the clicks_100 reward
	require.Equal(t, int64(24), out.LifetimePoints)
}

func TestRecordAdWatchUsesLevelReward(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	out, err := svc.RecordAdWatch(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, progression.ResolveLevel(0).AdReward, out.PointsEarned)

	_, err = svc.ledger.Post(ctx, nil, ledger.Posting{
		UserID: "u-1", Amount: 1000, Source: ledger.SourceAdminGift, ReferenceID: "gift:1",
	})
	require.NoError(t, err)

	out, err = svc.RecordAdWatch(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, progression.ResolveLevel(1000).AdReward, out.PointsEarned)
}

func TestRecordClickRequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordClick(context.Background(), "")
	require.Equal(t, errutil.StatusUnauthorized, errutil.StatusOf(err))
}
