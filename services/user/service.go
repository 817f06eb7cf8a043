package user

import (
	"context"

	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/services/progression"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrConcurrentUpdate = errutil.Conflict("user was modified concurrently, retry", nil,
	errutil.WithReason(errutil.ReasonConcurrentUpdate))

type Service struct {
	db       *gorm.DB
	calendar *progression.Calendar
	users    repository.Repository[User]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Calendar *progression.Calendar
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		calendar: p.Calendar,
		users:    repository.ProvideStore[User](p.DB),
	}
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// Ensure creates the progression row for userID on first sight and returns it
// locked for the rest of tx.
func (s *Service) Ensure(ctx context.Context, tx *gorm.DB, userID string) (*User, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	db := s.conn(tx)
	if err := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&User{ID: userID}).Error; err != nil {
		zap.L().Error("failed to ensure user", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to ensure user", err)
	}

	u, err := s.users.WithTrx(db).FindOne(ctx, &User{ID: userID}, option.WithLockingUpdate())
	if err != nil {
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	return u, nil
}

// Get returns the stored user, or a zero-valued user for an identity that has
// not earned anything yet.
func (s *Service) Get(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	u, err := s.users.FindOne(ctx, &User{ID: userID})
	if err != nil {
		zap.L().Error("failed to load user", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to load user", err)
	}
	if u == nil {
		return &User{ID: userID}, nil
	}
	return u, nil
}

// RecordActivity applies counter increments and advances the global activity
// streak, once per calendar day. It must run inside the mutation's transaction.
func (s *Service) RecordActivity(ctx context.Context, tx *gorm.DB, userID string, a Activity) (*User, error) {
	db := s.conn(tx)

	u, err := s.Ensure(ctx, db, userID)
	if err != nil {
		return nil, err
	}

	today := s.calendar.Today()
	streak := u.StreakDays
	if u.LastActiveDay == nil {
		streak = 1
	} else {
		switch gap := progression.DaysBetween(progression.AsDay(*u.LastActiveDay), today); {
		case gap <= 0:
		case gap == 1:
			streak++
		default:
			streak = 1
		}
	}

	res := db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND version = ?", u.ID, u.Version).
		Updates(map[string]any{
			"streak_days":      streak,
			"last_active_day":  today,
			"clicks":           gorm.Expr("clicks + ?", a.Clicks),
			"habits_completed": gorm.Expr("habits_completed + ?", a.HabitsCompleted),
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return nil, errutil.Internal("failed to record activity", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrConcurrentUpdate
	}

	return s.Ensure(ctx, db, userID)
}
