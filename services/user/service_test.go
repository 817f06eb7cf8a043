package user

import (
	"context"
	"testing"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/errutil"
	"progression-engine/services/progression"
	"progression-engine/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T, start time.Time) (*Service, *clock.FakeClock) {
	t.Helper()
	db := testutil.NewTestDB(t, &User{})
	fc := clock.NewFakeClock(start)
	return NewService(ServiceParams{DB: db, Calendar: progression.NewCalendar(time.UTC, fc)}), fc
}

func TestEnsureIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := svc.Ensure(ctx, nil, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), first.Points)

	_, err = svc.Ensure(ctx, nil, "u-1")
	require.NoError(t, err)

	var count int64
	require.NoError(t, svc.db.Model(&User{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestEnsureRequiresIdentity(t *testing.T) {
	svc, _ := newTestService(t, time.Now())

	_, err := svc.Ensure(context.Background(), nil, "")
	require.Equal(t, errutil.StatusUnauthorized, errutil.StatusOf(err))
}

func TestGetUnknownUserIsZero(t *testing.T) {
	svc, _ := newTestService(t, time.Now())

	u, err := svc.Get(context.Background(), "ghost")
	require.NoError(t, err)
	require.Equal(t, "ghost", u.ID)
	require.Zero(t, u.LifetimePoints)
}

func TestRecordActivityAdvancesDailyStreak(t *testing.T) {
	svc, fc := newTestService(t, time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	u, err := svc.RecordActivity(ctx, nil, "u-1", Activity{Clicks: 1})
	require.NoError(t, err)
	require.Equal(t, 1, u.StreakDays)
	require.Equal(t, int64(1), u.Clicks)

	// same day only bumps counters
	u, err = svc.RecordActivity(ctx, nil, "u-1", Activity{HabitsCompleted: 1})
	require.NoError(t, err)
	require.Equal(t, 1, u.StreakDays)
	require.Equal(t, int64(1), u.HabitsCompleted)

	fc.Advance(24 * time.Hour)
	u, err = svc.RecordActivity(ctx, nil, "u-1", Activity{})
	require.NoError(t, err)
	require.Equal(t, 2, u.StreakDays)

	fc.Advance(72 * time.Hour)
	u, err = svc.RecordActivity(ctx, nil, "u-1", Activity{})
	require.NoError(t, err)
	require.Equal(t, 1, u.StreakDays)
	require.Equal(t, int64(1), u.Clicks)
}
