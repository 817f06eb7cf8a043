package achievement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"progression-engine/pkg/celengine"
	"progression-engine/pkg/clock"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  clock.Clock
	ledger *ledger.Service
	cache  *celengine.ProgramCache

	achievements repository.Repository[Achievement]
	unlocks      repository.Repository[UserAchievement]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Clock  clock.Clock
	Ledger *ledger.Service
}

func NewService(p ServiceParams) (*Service, error) {
	env, err := celengine.NewEnv(VarClicks, VarLifetimePoints, VarStreakDays, VarHabitsCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to build achievement predicate env: %w", err)
	}

	return &Service{
		db:     p.DB,
		node:   p.Node,
		clock:  p.Clock,
		ledger: p.Ledger,
		cache:  celengine.NewProgramCache(env),

		achievements: repository.ProvideStore[Achievement](p.DB),
		unlocks:      repository.ProvideStore[UserAchievement](p.DB),
	}, nil
}

// Seed upserts defs, rejecting any predicate that does not compile to a bool.
func (s *Service) Seed(ctx context.Context, defs []Achievement) error {
	for _, d := range defs {
		if _, err := s.cache.Get(d.Predicate); err != nil {
			return fmt.Errorf("achievement %s: invalid predicate: %w", d.ID, err)
		}
	}
	if len(defs) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "icon", "predicate", "reward", "sort_order", "updated_at"}),
	}).Create(&defs).Error
}

func (s *Service) definitions(ctx context.Context) ([]*Achievement, error) {
	defs, err := s.achievements.Find(ctx, nil,
		option.WithSortBy(option.QuerySortBy{SortBy: "sort_order", OrderBy: "asc", Allow: map[string]bool{"sort_order": true}}))
	if err != nil {
		zap.L().Error("failed to load achievements", zap.Error(err))
		return nil, errutil.Internal("failed to load achievements", err)
	}
	return defs, nil
}

func (s *Service) owned(ctx context.Context, userID string) (map[string]time.Time, error) {
	rows, err := s.unlocks.Find(ctx, &UserAchievement{UserID: userID})
	if err != nil {
		zap.L().Error("failed to load user achievements", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to load user achievements", err)
	}
	out := make(map[string]time.Time, len(rows))
	for _, r := range rows {
		out[r.AchievementID] = r.UnlockedAt
	}
	return out, nil
}

func (s *Service) satisfied(def *Achievement, signal Signal) (bool, error) {
	prg, err := s.cache.Get(def.Predicate)
	if err != nil {
		return false, err
	}
	return celengine.Evaluate(prg, signal.Attributes())
}

// EvaluateAndUnlock grants every achievement the user does not own yet whose
// predicate holds for signal. Rewards raise lifetime points, so evaluation
// repeats until no further achievement unlocks.
func (s *Service) EvaluateAndUnlock(ctx context.Context, userID string, signal Signal) ([]*Unlocked, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	defs, err := s.definitions(ctx)
	if err != nil {
		return nil, err
	}
	owned, err := s.owned(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []*Unlocked
	for pass := 0; pass < len(defs); pass++ {
		moved := false
		for _, def := range defs {
			if _, ok := owned[def.ID]; ok {
				continue
			}

			ok, err := s.satisfied(def, signal)
			if err != nil {
				zap.L().Warn("achievement predicate failed", zap.String("achievement_id", def.ID), zap.Error(err))
				continue
			}
			if !ok {
				continue
			}

			unlocked, receipt, err := s.unlock(ctx, userID, def)
			if err != nil {
				return out, err
			}
			owned[def.ID] = s.clock.Now()
			if unlocked == nil {
				continue
			}
			out = append(out, unlocked)

			if receipt != nil && receipt.LifetimePoints > signal.LifetimePoints {
				signal.LifetimePoints = receipt.LifetimePoints
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return out, nil
}

// unlock inserts the join row and credits the reward in one transaction. A
// nil result means another evaluation already owns the unlock.
func (s *Service) unlock(ctx context.Context, userID string, def *Achievement) (*Unlocked, *ledger.Receipt, error) {
	now := s.clock.Now().UTC()
	var (
		unlocked *Unlocked
		receipt  *ledger.Receipt
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&UserAchievement{
			ID:            s.node.Generate().String(),
			UserID:        userID,
			AchievementID: def.ID,
			UnlockedAt:    now,
		})
		if res.Error != nil {
			return errutil.Internal("failed to unlock achievement", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if def.Reward > 0 {
			r, err := s.ledger.Post(ctx, tx, ledger.Posting{
				UserID:      userID,
				Amount:      def.Reward,
				Source:      ledger.SourceAchievement,
				ReferenceID: fmt.Sprintf("achievement:%s:%s", def.ID, userID),
				Description: def.Name,
				Metadata:    map[string]any{"achievement_id": def.ID},
			})
			if errors.Is(err, ledger.ErrDuplicateReference) {
				return nil
			}
			if err != nil {
				return err
			}
			receipt = r
		}

		unlocked = &Unlocked{ID: def.ID, Name: def.Name, Reward: def.Reward, UnlockedAt: now}
		return nil
	})
	if err != nil {
		zap.L().Error("failed to unlock achievement", zap.String("user_id", userID), zap.String("achievement_id", def.ID), zap.Error(err))
		return nil, nil, err
	}

	if unlocked != nil {
		zap.L().Info("achievement unlocked", zap.String("user_id", userID), zap.String("achievement_id", def.ID), zap.Int64("reward", def.Reward))
	}
	return unlocked, receipt, nil
}

// ListAchievements returns every achievement with the user's unlock time.
func (s *Service) ListAchievements(ctx context.Context, userID string) ([]*Status, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	defs, err := s.definitions(ctx)
	if err != nil {
		return nil, err
	}
	owned, err := s.owned(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*Status, 0, len(defs))
	for _, d := range defs {
		st := &Status{ID: d.ID, Name: d.Name, Description: d.Description, Icon: d.Icon, Reward: d.Reward}
		if at, ok := owned[d.ID]; ok {
			st.Unlocked = true
			st.UnlockedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}
