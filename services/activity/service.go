package activity

import (
	"context"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/services/achievement"
	"progression-engine/services/challenge"
	"progression-engine/services/ledger"
	"progression-engine/services/orchestrator"
	"progression-engine/services/progression"
	"progression-engine/services/user"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultClickReward = 1

// Result is the outcome of one credited engagement event.
type Result struct {
	PointsEarned         int64                   `json:"points_earned"`
	Points               int64                   `json:"points"`
	LifetimePoints       int64                   `json:"lifetime_points"`
	LeveledUp            bool                    `json:"leveled_up"`
	UnlockedAchievements []*achievement.Unlocked `json:"unlocked_achievements"`
}

type Service struct {
	db          *gorm.DB
	calendar    *progression.Calendar
	users       *user.Service
	ledger      *ledger.Service
	effects     *orchestrator.Service
	clickReward int64
}

type ServiceParams struct {
	fx.In
	DB           *gorm.DB
	Config       *config.Config
	Calendar     *progression.Calendar
	Users        *user.Service
	Ledger       *ledger.Service
	Orchestrator *orchestrator.Service
}

func NewService(p ServiceParams) *Service {
	reward := int64(defaultClickReward)
	if p.Config != nil && p.Config.Progression.ClickReward > 0 {
		reward = p.Config.Progression.ClickReward
	}
	return &Service{
		db:          p.DB,
		calendar:    p.Calendar,
		users:       p.Users,
		ledger:      p.Ledger,
		effects:     p.Orchestrator,
		clickReward: reward,
	}
}

// RecordClick credits the flat click reward and counts the click.
func (s *Service) RecordClick(ctx context.Context, userID string) (*Result, error) {
	return s.credit(ctx, userID, ledger.SourceClick, user.Activity{Clicks: 1}, challenge.TypeClick,
		func(*user.User) int64 { return s.clickReward })
}

// RecordAdWatch credits the ad reward of the user's current level.
func (s *Service) RecordAdWatch(ctx context.Context, userID string) (*Result, error) {
	return s.credit(ctx, userID, ledger.SourceAdWatch, user.Activity{}, challenge.TypeWatchAd,
		func(u *user.User) int64 { return progression.ResolveLevel(u.LifetimePoints).AdReward })
}

func (s *Service) credit(
	ctx context.Context,
	userID string,
	source ledger.Source,
	activity user.Activity,
	challengeType challenge.Type,
	amount func(*user.User) int64,
) (*Result, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	ref, err := ledger.GenerateReference(string(source), s.calendar.Now())
	if err != nil {
		return nil, errutil.Internal("failed to generate reference", err)
	}

	var (
		earned  int64
		receipt *ledger.Receipt
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.users.Ensure(ctx, tx, userID)
		if err != nil {
			return err
		}

		earned = amount(u)
		receipt, err = s.ledger.Post(ctx, tx, ledger.Posting{
			UserID:      userID,
			Amount:      earned,
			Source:      source,
			ReferenceID: ref,
			Description: source.Info().Label,
		})
		if err != nil {
			return err
		}

		_, err = s.users.RecordActivity(ctx, tx, userID, activity)
		return err
	})
	if err != nil {
		zap.L().Warn("failed to credit activity", zap.String("user_id", userID), zap.String("source", string(source)), zap.Error(err))
		return nil, err
	}

	effects := s.effects.Apply(ctx, orchestrator.Credit{
		UserID: userID,
		Progress: []orchestrator.Progress{
			{Type: challengeType, Increment: 1},
			{Type: challenge.TypeEarnPoints, Increment: int(earned)},
		},
	})

	out := &Result{
		PointsEarned:         earned,
		Points:               receipt.Points,
		LifetimePoints:       receipt.LifetimePoints,
		UnlockedAchievements: effects.Unlocked,
	}
	if effects.LifetimePoints > out.LifetimePoints {
		out.Points, out.LifetimePoints = effects.Points, effects.LifetimePoints
	}
	out.LeveledUp = progression.ResolveLevel(receipt.PreviousLifetimePoints).Level != progression.ResolveLevel(out.LifetimePoints).Level
	return out, nil
}
