package bootstrap

import (
	"context"
	"fmt"

	"progression-engine/pkg/config"
	"progression-engine/services/achievement"
	"progression-engine/services/challenge"
	"progression-engine/services/habit"
	"progression-engine/services/ledger"
	"progression-engine/services/notification"
	"progression-engine/services/task"
	"progression-engine/services/user"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models is every table the engine owns, in creation order.
func Models() []any {
	return []any{
		&user.User{},
		&ledger.Entry{},
		&habit.Habit{},
		&habit.Completion{},
		&challenge.Set{},
		&challenge.DailyChallenge{},
		&challenge.Completion{},
		&achievement.Achievement{},
		&achievement.UserAchievement{},
		&notification.Notification{},
		&task.Job{},
	}
}

type Service struct {
	db           *gorm.DB
	config       *config.Config
	achievements *achievement.Service
}

type ServiceParams struct {
	fx.In
	DB           *gorm.DB
	Config       *config.Config
	Achievements *achievement.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:           p.DB,
		config:       p.Config,
		achievements: p.Achievements,
	}
}

// Migrate creates the schema and upserts the built-in achievement catalog.
func (s *Service) Migrate(ctx context.Context) error {
	if s.config != nil && s.config.Database.SkipMigrate {
		zap.L().Info("[bootstrap] Schema migration disabled, seeding only")
	} else if err := s.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		zap.L().Error("[bootstrap] Failed to migrate schema", zap.Error(err))
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	defs := achievement.Definitions()
	if err := s.achievements.Seed(ctx, defs); err != nil {
		zap.L().Error("[bootstrap] Failed to seed achievements", zap.Error(err))
		return fmt.Errorf("failed to seed achievements: %w", err)
	}

	zap.L().Info("[bootstrap] Schema ready", zap.Int("achievements", len(defs)))
	return nil
}
