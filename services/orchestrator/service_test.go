package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/services/achievement"
	"progression-engine/services/challenge"
	"progression-engine/services/freeze"
	"progression-engine/services/habit"
	"progression-engine/services/leaderboard"
	"progression-engine/services/ledger"
	"progression-engine/services/notification"
	"progression-engine/services/progression"
	"progression-engine/services/testutil"
	"progression-engine/services/user"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fixture struct {
	svc        *Service
	db         *gorm.DB
	clock      *clock.FakeClock
	users      *user.Service
	habits     *habit.Service
	ledger     *ledger.Service
	challenges *challenge.Service
	freezes    *freeze.Service
	notifier   *notification.MockNotifier
}

func newFixture(t *testing.T) *fixture {
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
	random := progression.FixedSource(0.99)

	cfg := &config.Config{}
	cfg.Progression.ChallengesPerDay = 3

	users := user.NewService(user.ServiceParams{DB: db, Calendar: cal})
	ledgers := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Clock: fc, Users: users})
	habits := habit.NewService(habit.ServiceParams{DB: db, Node: node})
	challenges := challenge.NewService(challenge.ServiceParams{
		DB: db, Node: node, Config: cfg, Calendar: cal, Random: random, Ledger: ledgers,
	})
	achievements, err := achievement.NewService(achievement.ServiceParams{DB: db, Node: node, Clock: fc, Ledger: ledgers})
	require.NoError(t, err)
	require.NoError(t, achievements.Seed(context.Background(), achievement.Definitions()))

	notifier := notification.NewMockNotifier(gomock.NewController(t))

	return &fixture{
		svc: NewService(Params{
			DB: db, Calendar: cal, Random: random,
			Users: users, Habits: habits, Ledger: ledgers,
			Challenges: challenges, Achievements: achievements,
			Leaderboard: leaderboard.NewService(leaderboard.ServiceParams{DB: db, Config: cfg}),
			Notifier:    notifier,
		}),
		db:         db,
		clock:      fc,
		users:      users,
		habits:     habits,
		ledger:     ledgers,
		challenges: challenges,
		freezes: freeze.NewService(freeze.ServiceParams{
			DB: db, Node: node, Config: cfg, Calendar: cal, Habits: habits, Ledger: ledgers,
		}),
		notifier: notifier,
	}
}

func (f *fixture) habit(t *testing.T, owner string, d progression.Difficulty) *habit.Habit {
	t.Helper()
	h, err := f.habits.Create(context.Background(), owner, habit.CreateRequest{Name: "Read", Difficulty: d})
	require.NoError(t, err)
	return h
}

// seedChallenge pins today's challenge set to a single challenge.
func (f *fixture) seedChallenge(t *testing.T, typ challenge.Type, target int, reward int64) *challenge.DailyChallenge {
	t.Helper()
	day := f.svc.calendar.TodayKey()
	ch := &challenge.DailyChallenge{
		ID: "ch-" + string(typ), Type: typ, Day: day, Title: "test",
		Target: target, Reward: reward, Bracket: progression.DifficultyEasy,
	}
	require.NoError(t, f.db.Create(&challenge.Set{Day: day}).Error)
	require.NoError(t, f.db.Create(ch).Error)
	return ch
}

func (f *fixture) expectTitles(titles *[]string) {
	var mu sync.Mutex
	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg notification.Message) error {
			mu.Lock()
			defer mu.Unlock()
			*titles = append(*titles, msg.Title)
			return nil
		}).AnyTimes()
}

func TestCompleteHabitCreditsAndUnlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyMedium)

	var titles []string
	f.expectTitles(&titles)

	out, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.Equal(t, int64(40), out.PointsEarned)
	require.False(t, out.Critical)
	require.Equal(t, 1, out.NewStreak)
	require.False(t, out.LeveledUp)
	require.Len(t, out.UnlockedAchievements, 1)
	require.Equal(t, "first_habit", out.UnlockedAchievements[0].ID)
	// 40 for the habit and 10 for first_habit
	require.Equal(t, int64(50), out.LifetimePoints)
	require.Equal(t, []string{"Habit completed", "Achievement unlocked"}, titles)

	got, err := f.habits.Get(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Streak)
	require.Equal(t, int64(1), got.TotalCompleted)
	require.False(t, got.IsCurrentlyFrozen)

	u, err := f.users.Get(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(50), u.Points)
	require.Equal(t, int64(1), u.HabitsCompleted)

	report, err := f.ledger.VerifyChain(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, 2, report.Entries)
}

func TestCompleteHabitTwiceSameDayConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyEasy)
	var titles []string
	f.expectTitles(&titles)

	_, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.ErrorIs(t, err, progression.ErrAlreadyCompletedToday)
	require.Equal(t, errutil.StatusConflict, errutil.StatusOf(err))

	var completions int64
	require.NoError(t, f.db.Model(&habit.Completion{}).Count(&completions).Error)
	require.Equal(t, int64(1), completions)
}

func TestConcurrentCompletionSucceedsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	h := f.habit(t, "u-1", progression.DifficultyHard)
	var titles []string
	f.expectTitles(&titles)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CompleteHabit(context.Background(), "u-1", h.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errutil.StatusOf(err) == errutil.StatusConflict:
				conflicts++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, 1, conflicts)

	var completions, credits int64
	require.NoError(t, f.db.Model(&habit.Completion{}).Count(&completions).Error)
	require.NoError(t, f.db.Model(&ledger.Entry{}).Where("source = ?", ledger.SourceHabitCompletion).Count(&credits).Error)
	require.Equal(t, int64(1), completions)
	require.Equal(t, int64(1), credits)
}

func TestCompleteHabitStreakContinuity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyEasy)
	var titles []string
	f.expectTitles(&titles)

	var lifetime int64
	for day, want := range []int{1, 2, 3} {
		if day > 0 {
			f.clock.Advance(24 * time.Hour)
		}
		out, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
		require.NoError(t, err)
		require.Equal(t, want, out.NewStreak)
		require.GreaterOrEqual(t, out.LifetimePoints, lifetime)
		lifetime = out.LifetimePoints
	}

	// two missed days and no freeze
	f.clock.Advance(72 * time.Hour)
	out, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.Equal(t, 1, out.NewStreak)
}

// bankFreeze funds the user and buys one freeze for h.
func (f *fixture) bankFreeze(t *testing.T, userID, habitID string) {
	t.Helper()
	_, err := f.ledger.Post(context.Background(), nil, ledger.Posting{
		UserID: userID, Amount: 100, Source: ledger.SourceAdminGift, ReferenceID: "gift:freeze:" + habitID,
	})
	require.NoError(t, err)
	_, err = f.freezes.PurchaseFreeze(context.Background(), userID, habitID)
	require.NoError(t, err)
}

func TestFreezeBridgesOneMissedDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyEasy)
	var titles []string
	f.expectTitles(&titles)

	_, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)
	f.bankFreeze(t, "u-1", h.ID)

	// skip 03-11 behind a freeze, complete on 03-12
	f.clock.Advance(24 * time.Hour)
	_, err = f.freezes.UseFreeze(ctx, "u-1", h.ID)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	out, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.Equal(t, 2, out.NewStreak)

	got, err := f.habits.Get(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Streak)
	require.Equal(t, 0, got.FreezeCount)
	require.False(t, got.IsCurrentlyFrozen)
	require.Equal(t, int64(2), got.TotalCompleted)
}

func TestFreezeAfterMissedDayCoversOnlyThatDay(t *testing.T) {
	start := func(t *testing.T) (*fixture, *habit.Habit) {
		f := newFixture(t)
		h := f.habit(t, "u-1", progression.DifficultyEasy)
		var titles []string
		f.expectTitles(&titles)

		// streak 2 on 03-10 and 03-11, then 03-12 is missed
		for i := 0; i < 2; i++ {
			if i > 0 {
				f.clock.Advance(24 * time.Hour)
			}
			_, err := f.svc.CompleteHabit(context.Background(), "u-1", h.ID)
			require.NoError(t, err)
		}
		f.bankFreeze(t, "u-1", h.ID)

		f.clock.Advance(48 * time.Hour)
		out, err := f.freezes.UseFreeze(context.Background(), "u-1", h.ID)
		require.NoError(t, err)
		require.Equal(t, "2025-03-12", out.BridgedDay)
		return f, h
	}

	t.Run("completion the same day continues", func(t *testing.T) {
		f, h := start(t)
		out, err := f.svc.CompleteHabit(context.Background(), "u-1", h.ID)
		require.NoError(t, err)
		require.Equal(t, 3, out.NewStreak)
	})

	t.Run("skipping the freeze day resets", func(t *testing.T) {
		f, h := start(t)
		f.clock.Advance(24 * time.Hour)
		out, err := f.svc.CompleteHabit(context.Background(), "u-1", h.ID)
		require.NoError(t, err)
		require.Equal(t, 1, out.NewStreak)

		got, err := f.habits.Get(context.Background(), "u-1", h.ID)
		require.NoError(t, err)
		require.Equal(t, 0, got.FreezeCount)
	})
}

func TestFreezeRejectedAfterTwoMissedDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyEasy)
	var titles []string
	f.expectTitles(&titles)

	_, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)
	f.bankFreeze(t, "u-1", h.ID)

	f.clock.Advance(72 * time.Hour)
	_, err = f.freezes.UseFreeze(ctx, "u-1", h.ID)
	require.ErrorIs(t, err, freeze.ErrNothingToBridge)

	out, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.Equal(t, 1, out.NewStreak)

	got, err := f.habits.Get(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.FreezeCount, "the banked freeze is kept")
}

func TestCompleteHabitLevelUpSurvivesNotifyFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyMedium)

	_, err := f.ledger.Post(ctx, nil, ledger.Posting{
		UserID: "u-1", Amount: 95, Source: ledger.SourceAdminGift, ReferenceID: "gift:1",
	})
	require.NoError(t, err)

	f.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
		Return(errutil.BadGateway("push provider down", errors.New("timeout"))).Times(3)

	out, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)
	require.True(t, out.LeveledUp)
	require.Equal(t, 2, out.Level.Level)
	// 95 + 40 + 10 for first_habit
	require.Equal(t, int64(145), out.LifetimePoints)
}

func TestCompleteHabitOwnershipAndState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyEasy)

	_, err := f.svc.CompleteHabit(ctx, "", h.ID)
	require.Equal(t, errutil.StatusUnauthorized, errutil.StatusOf(err))

	_, err = f.svc.CompleteHabit(ctx, "u-2", h.ID)
	require.ErrorIs(t, err, habit.ErrNotOwner)

	_, err = f.svc.CompleteHabit(ctx, "u-1", "missing")
	require.ErrorIs(t, err, habit.ErrHabitNotFound)

	inactive := false
	_, err = f.habits.Update(ctx, "u-1", h.ID, habit.UpdateRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.ErrorIs(t, err, habit.ErrHabitInactive)

	var entries int64
	require.NoError(t, f.db.Model(&ledger.Entry{}).Count(&entries).Error)
	require.Zero(t, entries)
}

func TestCompletionDrivesChallengeAndClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h := f.habit(t, "u-1", progression.DifficultyEasy)
	ch := f.seedChallenge(t, challenge.TypeCompleteHabits, 1, 25)
	var titles []string
	f.expectTitles(&titles)

	_, err := f.svc.CompleteHabit(ctx, "u-1", h.ID)
	require.NoError(t, err)

	var progress challenge.Completion
	require.NoError(t, f.db.Where("user_id = ? AND challenge_id = ?", "u-1", ch.ID).First(&progress).Error)
	require.True(t, progress.Completed)
	require.Equal(t, 1, progress.Progress)

	before, err := f.users.Get(ctx, "u-1")
	require.NoError(t, err)

	claim, err := f.svc.ClaimChallenge(ctx, "u-1", ch.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25), claim.PointsEarned)
	require.Equal(t, before.Points+25, claim.Points)
	require.NotNil(t, claim.UnlockedAchievements)

	_, err = f.svc.ClaimChallenge(ctx, "u-1", ch.ID)
	require.ErrorIs(t, err, challenge.ErrAlreadyClaimed)

	var credits int64
	require.NoError(t, f.db.Model(&ledger.Entry{}).Where("source = ?", ledger.SourceChallenge).Count(&credits).Error)
	require.Equal(t, int64(1), credits)
}

func TestApplyWithoutOptionalCollaborators(t *testing.T) {
	f := newFixture(t)
	f.svc.notifier = nil
	f.svc.leaderboard = nil
	ctx := context.Background()

	_, err := f.ledger.Post(ctx, nil, ledger.Posting{
		UserID: "u-1", Amount: 5, Source: ledger.SourceAdminGift, ReferenceID: "gift:1",
	})
	require.NoError(t, err)

	effects := f.svc.Apply(ctx, Credit{UserID: "u-1", Progress: []Progress{{Type: challenge.TypeClick, Increment: 0}}})
	require.Empty(t, effects.Unlocked)
	require.Equal(t, int64(5), effects.LifetimePoints)
}
