package habit

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"progression-engine/pkg/db"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/db/pagination"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/services/progression"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxNameLength     = 100
	maxCategoryLength = 50
)

var (
	ErrHabitNotFound = errutil.NotFound("habit not found", nil)
	ErrHabitInactive = errutil.NotFound("habit is not active", nil,
		errutil.WithReason(errutil.ReasonHabitInactive))
	ErrNotOwner         = errutil.Forbidden("habit belongs to another user", nil)
	ErrConcurrentUpdate = errutil.Conflict("habit was modified concurrently, retry", nil,
		errutil.WithReason(errutil.ReasonConcurrentUpdate))
)

var sanitizer = bluemonday.StrictPolicy()

type Service struct {
	db   *gorm.DB
	node *snowflake.Node

	habits      repository.Repository[Habit]
	completions repository.Repository[Completion]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,

		habits:      repository.ProvideStore[Habit](p.DB),
		completions: repository.ProvideStore[Completion](p.DB),
	}
}

func cleanText(v string) string {
	return strings.TrimSpace(sanitizer.Sanitize(v))
}

func validateName(name string) error {
	if name == "" {
		return errutil.ValidationFailed("name is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "name", Message: "required"}))
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return errutil.ValidationFailed("name is too long", nil,
			errutil.WithDetails(errutil.Detail{Field: "name", Message: fmt.Sprintf("at most %d characters", maxNameLength)}))
	}
	return nil
}

func validateDifficulty(d progression.Difficulty) error {
	if !d.Valid() {
		return errutil.ValidationFailed("unknown difficulty", nil,
			errutil.WithDetails(errutil.Detail{Field: "difficulty", Message: string(d)}))
	}
	return nil
}

func normalizeCategory(c string) (string, error) {
	c = cleanText(c)
	if c == "" {
		return DefaultCategory, nil
	}
	if utf8.RuneCountInString(c) > maxCategoryLength {
		return "", errutil.ValidationFailed("category is too long", nil,
			errutil.WithDetails(errutil.Detail{Field: "category", Message: fmt.Sprintf("at most %d characters", maxCategoryLength)}))
	}
	return strings.ToLower(c), nil
}

func (s *Service) Create(ctx context.Context, ownerID string, req CreateRequest) (*Habit, error) {
	if ownerID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	name := cleanText(req.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateDifficulty(req.Difficulty); err != nil {
		return nil, err
	}
	category, err := normalizeCategory(req.Category)
	if err != nil {
		return nil, err
	}

	id := s.node.Generate().String()
	slugName := slug.Make(name)
	if slugName == "" {
		slugName = "habit"
	}

	// soft-deleted habits keep their slug
	var taken int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&Habit{}).
		Where("owner_id = ? AND slug = ?", ownerID, slugName).Count(&taken).Error; err != nil {
		return nil, errutil.Internal("failed to check slug", err)
	}
	if taken > 0 {
		slugName = fmt.Sprintf("%s-%s", slugName, id[len(id)-6:])
	}

	h := &Habit{
		ID:         id,
		OwnerID:    ownerID,
		Name:       name,
		Slug:       slugName,
		Difficulty: req.Difficulty,
		Category:   category,
		IsActive:   true,
	}
	if err := s.habits.Create(ctx, h); err != nil {
		if db.IsUniqueViolation(err) {
			return nil, errutil.Conflict("a habit with this name already exists", err)
		}
		zap.L().Error("failed to create habit", zap.String("user_id", ownerID), zap.Error(err))
		return nil, errutil.Internal("failed to create habit", err)
	}

	zap.L().Info("habit created", zap.String("user_id", ownerID), zap.String("habit_id", h.ID), zap.String("difficulty", string(h.Difficulty)))
	return h, nil
}

func (s *Service) List(ctx context.Context, ownerID string, activeOnly bool) ([]*Habit, error) {
	if ownerID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	opts := []option.QueryOption{option.WithSortBy(option.QuerySortBy{OrderBy: "asc"})}
	if activeOnly {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: true}))
	}

	habits, err := s.habits.Find(ctx, &Habit{OwnerID: ownerID}, opts...)
	if err != nil {
		zap.L().Error("failed to list habits", zap.String("user_id", ownerID), zap.Error(err))
		return nil, errutil.Internal("failed to list habits", err)
	}
	return habits, nil
}

func (s *Service) Get(ctx context.Context, ownerID, habitID string) (*Habit, error) {
	return s.LoadOwned(ctx, nil, ownerID, habitID)
}

// LoadOwned loads the habit for a mutation by its owner. Inside a transaction
// the row stays locked until commit.
func (s *Service) LoadOwned(ctx context.Context, tx *gorm.DB, ownerID, habitID string) (*Habit, error) {
	if ownerID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}
	if habitID == "" {
		return nil, ErrHabitNotFound
	}

	repo := s.habits
	var opts []option.QueryOption
	if tx != nil {
		repo = repo.WithTrx(tx)
		opts = append(opts, option.WithLockingUpdate())
	}

	h, err := repo.FindOne(ctx, &Habit{ID: habitID}, opts...)
	if err != nil {
		zap.L().Error("failed to load habit", zap.String("habit_id", habitID), zap.Error(err))
		return nil, errutil.Internal("failed to load habit", err)
	}
	if h == nil {
		return nil, ErrHabitNotFound
	}
	if h.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return h, nil
}

// LoadActive is LoadOwned for operations that need an active habit.
func (s *Service) LoadActive(ctx context.Context, tx *gorm.DB, ownerID, habitID string) (*Habit, error) {
	h, err := s.LoadOwned(ctx, tx, ownerID, habitID)
	if err != nil {
		return nil, err
	}
	if !h.IsActive {
		return nil, ErrHabitInactive
	}
	return h, nil
}

// CompareAndSwap applies updates only if h is still at the version it was
// read at, and bumps the version.
func (s *Service) CompareAndSwap(ctx context.Context, tx *gorm.DB, h *Habit, updates map[string]any) error {
	if tx == nil {
		tx = s.db
	}

	updates["version"] = gorm.Expr("version + 1")
	res := tx.WithContext(ctx).Model(&Habit{}).
		Where("id = ? AND version = ?", h.ID, h.Version).
		Updates(updates)
	if res.Error != nil {
		zap.L().Error("failed to update habit", zap.String("habit_id", h.ID), zap.Error(res.Error))
		return errutil.Internal("failed to update habit", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentUpdate
	}
	return nil
}

func (s *Service) Update(ctx context.Context, ownerID, habitID string, req UpdateRequest) (*Habit, error) {
	updates := map[string]any{}
	if req.Name != nil {
		name := cleanText(*req.Name)
		if err := validateName(name); err != nil {
			return nil, err
		}
		updates["name"] = name
	}
	if req.Difficulty != nil {
		if err := validateDifficulty(*req.Difficulty); err != nil {
			return nil, err
		}
		updates["difficulty"] = *req.Difficulty
	}
	if req.Category != nil {
		category, err := normalizeCategory(*req.Category)
		if err != nil {
			return nil, err
		}
		updates["category"] = category
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	var out *Habit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := s.LoadOwned(ctx, tx, ownerID, habitID)
		if err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := s.CompareAndSwap(ctx, tx, h, updates); err != nil {
				return err
			}
		}
		out, err = s.LoadOwned(ctx, tx, ownerID, habitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, habitID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := s.LoadOwned(ctx, tx, ownerID, habitID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&Habit{}, "id = ?", h.ID).Error; err != nil {
			zap.L().Error("failed to delete habit", zap.String("habit_id", h.ID), zap.Error(err))
			return errutil.Internal("failed to delete habit", err)
		}
		zap.L().Info("habit deleted", zap.String("user_id", ownerID), zap.String("habit_id", h.ID))
		return nil
	})
}

// CompletionOn returns the completion recorded for dayKey, nil if none.
func (s *Service) CompletionOn(ctx context.Context, tx *gorm.DB, habitID, dayKey string) (*Completion, error) {
	repo := s.completions
	if tx != nil {
		repo = repo.WithTrx(tx)
	}
	c, err := repo.FindOne(ctx, &Completion{HabitID: habitID, CompletedDay: dayKey})
	if err != nil {
		return nil, errutil.Internal("failed to load completion", err)
	}
	return c, nil
}

// InsertCompletion appends c. The (habit, day) unique index turns a racing
// second completion into ErrAlreadyCompletedToday.
func (s *Service) InsertCompletion(ctx context.Context, tx *gorm.DB, c *Completion) error {
	if c.ID == "" {
		c.ID = s.node.Generate().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = c.CompletedAt
	}

	repo := s.completions
	if tx != nil {
		repo = repo.WithTrx(tx)
	}
	if err := repo.Create(ctx, c); err != nil {
		if db.IsUniqueViolation(err) {
			return progression.ErrAlreadyCompletedToday
		}
		zap.L().Error("failed to insert completion", zap.String("habit_id", c.HabitID), zap.Error(err))
		return errutil.Internal("failed to insert completion", err)
	}
	return nil
}

// ListCompletions pages through a habit's completions, newest first.
func (s *Service) ListCompletions(ctx context.Context, ownerID, habitID string, p pagination.Pagination) ([]*Completion, *pagination.PageInfo, error) {
	h, err := s.LoadOwned(ctx, nil, ownerID, habitID)
	if err != nil {
		return nil, nil, err
	}

	p = p.Normalize()
	opts, err := pagination.NewestFirst(p)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	rows, err := s.completions.Find(ctx, &Completion{HabitID: h.ID}, opts...)
	if err != nil {
		zap.L().Error("failed to list completions", zap.String("habit_id", h.ID), zap.Error(err))
		return nil, nil, errutil.Internal("failed to list completions", err)
	}

	data, info := pagination.BuildCursorPageInfo(rows, p.Limit, func(c *Completion) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano), ID: c.ID}
	})
	return data, info, nil
}
