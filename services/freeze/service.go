package freeze

import (
	"context"
	"fmt"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/services/habit"
	"progression-engine/services/ledger"
	"progression-engine/services/progression"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrFreezeCapReached = errutil.UnprocessableEntity("a streak freeze is already banked for this habit", nil,
		errutil.WithReason(errutil.ReasonFreezeCapReached))
	ErrNoFreezeAvailable = errutil.UnprocessableEntity("no streak freeze available", nil,
		errutil.WithReason(errutil.ReasonNoFreezeAvailable))
	ErrAlreadyFrozenToday = errutil.Conflict("a streak freeze is already applied today", nil,
		errutil.WithReason(errutil.ReasonAlreadyFrozenToday))
	ErrNothingToBridge = errutil.UnprocessableEntity("no missed day a streak freeze can cover", nil,
		errutil.WithReason(errutil.ReasonNothingToBridge))
)

type PurchaseResult struct {
	HabitID     string `json:"habit_id"`
	FreezeCount int    `json:"freeze_count"`
	Points      int64  `json:"points"`
}

type UseResult struct {
	HabitID     string `json:"habit_id"`
	Streak      int    `json:"streak"`
	FreezeCount int    `json:"freeze_count"`
	BridgedDay  string `json:"bridged_day"`
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	calendar *progression.Calendar
	habits   *habit.Service
	ledger   *ledger.Service

	price int64
	cap   int
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Calendar *progression.Calendar
	Habits   *habit.Service
	Ledger   *ledger.Service
}

func NewService(p ServiceParams) *Service {
	price, limit := int64(50), 1
	if p.Config != nil {
		if p.Config.Progression.FreezePrice > 0 {
			price = p.Config.Progression.FreezePrice
		}
		if p.Config.Progression.FreezeCap > 0 {
			limit = p.Config.Progression.FreezeCap
		}
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		calendar: p.Calendar,
		habits:   p.Habits,
		ledger:   p.Ledger,
		price:    price,
		cap:      limit,
	}
}

// PurchaseFreeze debits the freeze price and banks one freeze on the habit.
// Balance, habit and ledger change together or not at all.
func (s *Service) PurchaseFreeze(ctx context.Context, userID, habitID string) (*PurchaseResult, error) {
	var out *PurchaseResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := s.habits.LoadActive(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if h.FreezeCount >= s.cap {
			return ErrFreezeCapReached
		}

		receipt, err := s.ledger.Post(ctx, tx, ledger.Posting{
			UserID:      userID,
			Amount:      -s.price,
			Source:      ledger.SourceStreakFreezePurchase,
			ReferenceID: fmt.Sprintf("freeze:%s:%s", h.ID, s.node.Generate().String()),
			Description: fmt.Sprintf("Streak freeze for %s", h.Name),
			Metadata:    map[string]any{"habit_id": h.ID},
		})
		if err != nil {
			return err
		}

		if err := s.habits.CompareAndSwap(ctx, tx, h, map[string]any{
			"freeze_count": gorm.Expr("freeze_count + 1"),
		}); err != nil {
			return err
		}

		out = &PurchaseResult{HabitID: h.ID, FreezeCount: h.FreezeCount + 1, Points: receipt.Points}
		return nil
	})
	if err != nil {
		zap.L().Info("freeze purchase rejected",
			zap.String("user_id", userID),
			zap.String("habit_id", habitID),
			zap.String("reason", errutil.ReasonOf(err)),
		)
		return nil, err
	}

	zap.L().Info("freeze purchased", zap.String("user_id", userID), zap.String("habit_id", habitID), zap.Int64("price", s.price))
	return out, nil
}

// UseFreeze spends a banked freeze on exactly one day. With yesterday
// completed the freeze covers today; with yesterday missed it covers
// yesterday, so only a completion today keeps the streak alive. Older gaps
// and habits never completed have nothing to cover and keep their freeze.
// It neither earns points nor advances the streak.
func (s *Service) UseFreeze(ctx context.Context, userID, habitID string) (*UseResult, error) {
	var out *UseResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := s.habits.LoadActive(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if h.FreezeCount < 1 {
			return ErrNoFreezeAvailable
		}

		last := h.LastDay()
		if last == nil {
			return ErrNothingToBridge
		}

		today := s.calendar.Today()
		bridged := today
		switch gap := progression.DaysBetween(*last, today); {
		case gap <= 0 && h.IsCurrentlyFrozen:
			return ErrAlreadyFrozenToday
		case gap <= 0:
			return progression.ErrAlreadyCompletedToday
		case gap == 1:
		case gap == 2:
			bridged = today.AddDate(0, 0, -1)
		default:
			return ErrNothingToBridge
		}

		if err := s.habits.CompareAndSwap(ctx, tx, h, map[string]any{
			"freeze_count":        gorm.Expr("freeze_count - 1"),
			"last_completed_at":   bridged,
			"is_currently_frozen": true,
		}); err != nil {
			return err
		}

		out = &UseResult{
			HabitID:     h.ID,
			Streak:      h.Streak,
			FreezeCount: h.FreezeCount - 1,
			BridgedDay:  bridged.Format(progression.DayLayout),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("freeze used", zap.String("user_id", userID), zap.String("habit_id", habitID), zap.Int("streak", out.Streak), zap.String("bridged_day", out.BridgedDay))
	return out, nil
}
