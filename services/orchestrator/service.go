package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"progression-engine/pkg/errutil"
	"progression-engine/services/achievement"
	"progression-engine/services/challenge"
	"progression-engine/services/habit"
	"progression-engine/services/leaderboard"
	"progression-engine/services/ledger"
	"progression-engine/services/notification"
	"progression-engine/services/progression"
	"progression-engine/services/user"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	calendar *progression.Calendar
	random   progression.RandomSource

	users        *user.Service
	habits       *habit.Service
	ledger       *ledger.Service
	challenges   *challenge.Service
	achievements *achievement.Service
	leaderboard  *leaderboard.Service
	notifier     notification.Notifier
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Calendar *progression.Calendar
	Random   progression.RandomSource

	Users        *user.Service
	Habits       *habit.Service
	Ledger       *ledger.Service
	Challenges   *challenge.Service
	Achievements *achievement.Service
	Leaderboard  *leaderboard.Service  `optional:"true"`
	Notifier     notification.Notifier `optional:"true"`
}

func NewService(p Params) *Service {
	return &Service{
		db:           p.DB,
		calendar:     p.Calendar,
		random:       p.Random,
		users:        p.Users,
		habits:       p.Habits,
		ledger:       p.Ledger,
		challenges:   p.Challenges,
		achievements: p.Achievements,
		leaderboard:  p.Leaderboard,
		notifier:     p.Notifier,
	}
}

func traceLogger(ctx context.Context, fields ...zap.Field) *zap.Logger {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	return zap.L().With(fields...)
}

// CompleteHabit records today's completion of habitID. The completion row,
// the habit streak, the points credit and the history entry commit together;
// challenge progress, achievements, the leaderboard and the notification run
// after commit and never undo it.
func (s *Service) CompleteHabit(ctx context.Context, userID, habitID string) (*CompletionResult, error) {
	zapLog := traceLogger(ctx, zap.String("user_id", userID), zap.String("habit_id", habitID))

	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	var (
		h       *habit.Habit
		roll    progression.Roll
		streak  int
		before  *user.User
		receipt *ledger.Receipt
	)

	today := s.calendar.Today()
	dayKey := today.Format(progression.DayLayout)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		before, err = s.users.Ensure(ctx, tx, userID)
		if err != nil {
			return err
		}

		h, err = s.habits.LoadActive(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}

		existing, err := s.habits.CompletionOn(ctx, tx, h.ID, dayKey)
		if err != nil {
			return err
		}
		if existing != nil {
			return progression.ErrAlreadyCompletedToday
		}

		level := progression.ResolveLevel(before.LifetimePoints)
		roll = progression.RollReward(s.random, h.Difficulty, level.XPMultiplier)

		streak, err = progression.NextStreak(h.Streak, h.LastDay(), today, h.IsCurrentlyFrozen)
		if err != nil {
			return err
		}

		if err := s.habits.InsertCompletion(ctx, tx, &habit.Completion{
			HabitID:      h.ID,
			UserID:       userID,
			CompletedDay: dayKey,
			CompletedAt:  s.calendar.Now().UTC(),
			PointsEarned: roll.Points,
			Critical:     roll.Critical,
			StreakAfter:  streak,
		}); err != nil {
			return err
		}

		if err := s.habits.CompareAndSwap(ctx, tx, h, map[string]any{
			"streak":              streak,
			"last_completed_at":   today,
			"is_currently_frozen": false,
			"total_completed":     gorm.Expr("total_completed + 1"),
		}); err != nil {
			return err
		}

		receipt, err = s.ledger.Post(ctx, tx, ledger.Posting{
			UserID:      userID,
			Amount:      roll.Points,
			Source:      ledger.SourceHabitCompletion,
			ReferenceID: fmt.Sprintf("habit:%s:%s", h.ID, dayKey),
			Description: h.Name,
			Metadata: map[string]any{
				"habit_id":   h.ID,
				"difficulty": string(h.Difficulty),
				"critical":   roll.Critical,
				"streak":     streak,
			},
		})
		if errors.Is(err, ledger.ErrDuplicateReference) {
			return progression.ErrAlreadyCompletedToday
		}
		if err != nil {
			return err
		}

		_, err = s.users.RecordActivity(ctx, tx, userID, user.Activity{HabitsCompleted: 1})
		return err
	})
	if err != nil {
		if !errors.Is(err, progression.ErrAlreadyCompletedToday) {
			zapLog.Warn("habit completion failed", zap.Error(err))
		}
		return nil, err
	}

	zapLog.Info("habit completed",
		zap.Int64("points", roll.Points),
		zap.Bool("critical", roll.Critical),
		zap.Int("streak", streak),
	)

	progress := []Progress{
		{Type: challenge.TypeCompleteHabits, Increment: 1},
		{Type: challenge.TypeEarnPoints, Increment: int(roll.Points)},
	}
	if hardDifficulties[h.Difficulty] {
		progress = append(progress, Progress{Type: challenge.TypeCompleteHardHabit, Increment: 1})
	}
	effects := s.Apply(ctx, Credit{UserID: userID, Streak: streak, Progress: progress})

	points, lifetime := receipt.Points, receipt.LifetimePoints
	if effects.LifetimePoints > lifetime {
		points, lifetime = effects.Points, effects.LifetimePoints
	}

	out := &CompletionResult{
		HabitID:              h.ID,
		PointsEarned:         roll.Points,
		Critical:             roll.Critical,
		NewStreak:            streak,
		LeveledUp:            progression.ResolveLevel(before.LifetimePoints).Level != progression.ResolveLevel(lifetime).Level,
		Level:                progression.ResolveLevel(lifetime),
		Points:               points,
		LifetimePoints:       lifetime,
		UnlockedAchievements: effects.Unlocked,
	}

	s.notify(ctx, notification.Message{
		UserID: userID,
		Title:  "Habit completed",
		Body:   fmt.Sprintf("%s: +%d points, %d day streak", h.Name, roll.Points, streak),
		Data:   map[string]any{"habit_id": h.ID, "points": roll.Points, "streak": streak, "critical": roll.Critical},
	})
	if out.LeveledUp {
		s.notify(ctx, notification.Message{
			UserID: userID,
			Title:  "Level up",
			Body:   fmt.Sprintf("You reached level %d, %s", out.Level.Level, out.Level.Name),
			Data:   map[string]any{"level": out.Level.Level},
		})
	}
	s.notifyUnlocked(ctx, userID, effects.Unlocked)

	return out, nil
}

// ClaimChallenge credits a completed challenge and runs the achievement and
// leaderboard side effects of the credit.
func (s *Service) ClaimChallenge(ctx context.Context, userID, challengeID string) (*ClaimResult, error) {
	claim, err := s.challenges.ClaimReward(ctx, userID, challengeID)
	if err != nil {
		return nil, err
	}

	effects := s.Apply(ctx, Credit{UserID: userID})
	if effects.LifetimePoints > claim.LifetimePoints {
		claim.Points, claim.LifetimePoints = effects.Points, effects.LifetimePoints
	}
	s.notifyUnlocked(ctx, userID, effects.Unlocked)

	return &ClaimResult{ClaimResult: claim, UnlockedAchievements: effects.Unlocked}, nil
}

// Apply runs the post-commit side effects of a credit. Failures are logged;
// the credit itself is already durable.
func (s *Service) Apply(ctx context.Context, c Credit) Effects {
	zapLog := traceLogger(ctx, zap.String("user_id", c.UserID))
	effects := Effects{Unlocked: []*achievement.Unlocked{}}

	if s.challenges != nil {
		for _, p := range c.Progress {
			if p.Increment <= 0 {
				continue
			}
			if _, err := s.challenges.RecordProgress(ctx, c.UserID, p.Type, p.Increment); err != nil {
				zapLog.Warn("failed to record challenge progress", zap.String("type", string(p.Type)), zap.Error(err))
			}
		}
	}

	u, err := s.users.Get(ctx, c.UserID)
	if err != nil {
		zapLog.Warn("failed to reload user after credit", zap.Error(err))
		return effects
	}

	if s.achievements != nil {
		unlocked, err := s.achievements.EvaluateAndUnlock(ctx, c.UserID, achievement.Signal{
			Clicks:          u.Clicks,
			LifetimePoints:  u.LifetimePoints,
			StreakDays:      max(u.StreakDays, c.Streak),
			HabitsCompleted: u.HabitsCompleted,
		})
		if err != nil {
			zapLog.Warn("achievement evaluation failed", zap.Error(err))
		}
		effects.Unlocked = append(effects.Unlocked, unlocked...)

		if len(unlocked) > 0 {
			if reloaded, err := s.users.Get(ctx, c.UserID); err == nil {
				u = reloaded
			}
		}
	}

	effects.Points, effects.LifetimePoints = u.Points, u.LifetimePoints
	if s.leaderboard != nil {
		s.leaderboard.Sync(ctx, c.UserID, u.LifetimePoints)
	}
	return effects
}

func (s *Service) notifyUnlocked(ctx context.Context, userID string, unlocked []*achievement.Unlocked) {
	for _, a := range unlocked {
		s.notify(ctx, notification.Message{
			UserID: userID,
			Title:  "Achievement unlocked",
			Body:   fmt.Sprintf("%s: +%d points", a.Name, a.Reward),
			Data:   map[string]any{"achievement_id": a.ID, "reward": a.Reward},
		})
	}
}

// notify is fire and forget.
func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		traceLogger(ctx, zap.String("user_id", msg.UserID)).Warn("notification dispatch failed",
			zap.String("title", msg.Title), zap.Error(err))
	}
}
