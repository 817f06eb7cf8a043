package challenge

import (
	"context"
	"errors"
	"fmt"
	"math"

	"progression-engine/pkg/config"
	"progression-engine/pkg/db"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/services/ledger"
	"progression-engine/services/progression"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAttempts = 3

var (
	ErrChallengeNotFound = errutil.NotFound("challenge not found", nil)
	ErrNotCompleted      = errutil.UnprocessableEntity("challenge is not completed yet", nil,
		errutil.WithReason(errutil.ReasonChallengeNotCompleted))
	ErrAlreadyClaimed = errutil.Conflict("challenge reward already claimed", nil,
		errutil.WithReason(errutil.ReasonChallengeAlreadyClaimed))
	ErrConcurrentUpdate = errutil.Conflict("challenge progress was modified concurrently", nil,
		errutil.WithReason(errutil.ReasonConcurrentUpdate))
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	calendar *progression.Calendar
	random   progression.RandomSource
	ledger   *ledger.Service
	perDay   int

	challenges  repository.Repository[DailyChallenge]
	completions repository.Repository[Completion]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Calendar *progression.Calendar
	Random   progression.RandomSource
	Ledger   *ledger.Service
}

func NewService(p ServiceParams) *Service {
	perDay := 3
	if p.Config != nil && p.Config.Progression.ChallengesPerDay > 0 {
		perDay = p.Config.Progression.ChallengesPerDay
	}
	random := p.Random
	if random == nil {
		random = progression.DefaultSource()
	}

	return &Service{
		db:       p.DB,
		node:     p.Node,
		calendar: p.Calendar,
		random:   random,
		ledger:   p.Ledger,
		perDay:   perDay,

		challenges:  repository.ProvideStore[DailyChallenge](p.DB),
		completions: repository.ProvideStore[Completion](p.DB),
	}
}

// pick draws up to n templates of distinct types.
func (s *Service) pick(n int) []Template {
	pool := Templates()
	for i := len(pool) - 1; i > 0; i-- {
		j := int(s.random.Float64() * float64(i+1))
		if j > i {
			j = i
		}
		pool[i], pool[j] = pool[j], pool[i]
	}

	seen := make(map[Type]bool, n)
	out := make([]Template, 0, n)
	for _, t := range pool {
		if len(out) == n {
			break
		}
		if seen[t.Type] {
			continue
		}
		seen[t.Type] = true
		out = append(out, t)
	}
	return out
}

// rollReward returns a reward in [base, 2*base) of the template's bracket.
func (s *Service) rollReward(t Template) int64 {
	base := t.Bracket.BaseReward()
	return base + int64(math.Floor(s.random.Float64()*float64(base)))
}

func (s *Service) listDay(ctx context.Context, day string) ([]*DailyChallenge, error) {
	out, err := s.challenges.Find(ctx, &DailyChallenge{Day: day},
		option.WithSortBy(option.QuerySortBy{SortBy: "type", OrderBy: "asc", Allow: map[string]bool{"type": true}}))
	if err != nil {
		zap.L().Error("failed to list challenges", zap.String("day", day), zap.Error(err))
		return nil, errutil.Internal("failed to list challenges", err)
	}
	return out, nil
}

func (s *Service) EnsureTodayChallenges(ctx context.Context) ([]*DailyChallenge, error) {
	return s.EnsureChallenges(ctx, s.calendar.TodayKey())
}

// EnsureChallenges materializes the set for day on first read. Concurrent
// callers race on the set's primary key; the losers re-read the winner's set.
func (s *Service) EnsureChallenges(ctx context.Context, day string) ([]*DailyChallenge, error) {
	existing, err := s.listDay(ctx, day)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}

	picks := s.pick(s.perDay)
	rows := make([]*DailyChallenge, 0, len(picks))
	for _, t := range picks {
		rows = append(rows, &DailyChallenge{
			ID:          s.node.Generate().String(),
			Type:        t.Type,
			Day:         day,
			Title:       t.Title,
			Description: t.Description,
			Target:      t.Target,
			Reward:      s.rollReward(t),
			Bracket:     t.Bracket,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&Set{Day: day}).Error; err != nil {
			return err
		}
		return s.challenges.WithTrx(tx).BatchCreate(ctx, rows)
	})
	switch {
	case err == nil:
		zap.L().Info("daily challenges materialized", zap.String("day", day), zap.Int("count", len(rows)))
	case db.IsUniqueViolation(err):
		zap.L().Debug("daily challenges already materialized", zap.String("day", day))
	default:
		zap.L().Error("failed to materialize challenges", zap.String("day", day), zap.Error(err))
		return nil, errutil.Internal("failed to materialize challenges", err)
	}

	return s.listDay(ctx, day)
}

// GetTodayChallenges returns today's set with the caller's progress.
func (s *Service) GetTodayChallenges(ctx context.Context, userID string) ([]*UserChallenge, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	challenges, err := s.EnsureTodayChallenges(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(challenges))
	for _, c := range challenges {
		ids = append(ids, c.ID)
	}
	progress, err := s.completions.Find(ctx, &Completion{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "challenge_id", Operator: option.IN, Value: ids}))
	if err != nil {
		zap.L().Error("failed to load challenge progress", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to load challenge progress", err)
	}
	byChallenge := make(map[string]*Completion, len(progress))
	for _, p := range progress {
		byChallenge[p.ChallengeID] = p
	}

	out := make([]*UserChallenge, 0, len(challenges))
	for _, c := range challenges {
		uc := &UserChallenge{
			ID:          c.ID,
			Type:        c.Type,
			Title:       c.Title,
			Description: c.Description,
			Day:         c.Day,
			Target:      c.Target,
			Reward:      c.Reward,
		}
		if p, ok := byChallenge[c.ID]; ok {
			uc.Progress = p.Progress
			uc.Completed = p.Completed
			uc.Claimed = p.Claimed
		}
		out = append(out, uc)
	}
	return out, nil
}

// RecordProgress adds increment to the user's progress on today's challenge
// of type t. It returns nil when today has no such challenge. Progress is
// capped at the target and a completed challenge no longer moves.
func (s *Service) RecordProgress(ctx context.Context, userID string, t Type, increment int) (*Completion, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}
	if increment <= 0 {
		return nil, errutil.ValidationFailed("increment must be positive", nil,
			errutil.WithDetails(errutil.Detail{Field: "increment", Message: "must be positive"}))
	}

	challenges, err := s.EnsureTodayChallenges(ctx)
	if err != nil {
		return nil, err
	}
	var ch *DailyChallenge
	for _, c := range challenges {
		if c.Type == t {
			ch = c
			break
		}
	}
	if ch == nil {
		return nil, nil
	}

	for attempt := 1; ; attempt++ {
		c, err := s.recordProgress(ctx, userID, ch, increment)
		if err == nil || !errors.Is(err, ErrConcurrentUpdate) || attempt == maxAttempts {
			return c, err
		}
		zap.L().Debug("retrying challenge progress", zap.String("user_id", userID), zap.String("challenge_id", ch.ID), zap.Int("attempt", attempt))
	}
}

func (s *Service) recordProgress(ctx context.Context, userID string, ch *DailyChallenge, increment int) (*Completion, error) {
	now := s.calendar.Now()

	existing, err := s.completions.FindOne(ctx, &Completion{UserID: userID, ChallengeID: ch.ID})
	if err != nil {
		return nil, errutil.Internal("failed to load challenge progress", err)
	}

	if existing == nil {
		c := &Completion{
			ID:          s.node.Generate().String(),
			UserID:      userID,
			ChallengeID: ch.ID,
			Progress:    min(increment, ch.Target),
		}
		if c.Progress >= ch.Target {
			c.Completed = true
			c.CompletedAt = &now
		}
		if err := s.completions.Create(ctx, c); err != nil {
			if db.IsUniqueViolation(err) {
				return nil, ErrConcurrentUpdate
			}
			return nil, errutil.Internal("failed to record challenge progress", err)
		}
		return c, nil
	}

	if existing.Completed {
		return existing, nil
	}

	progress := min(existing.Progress+increment, ch.Target)
	updates := map[string]any{
		"progress": progress,
		"version":  gorm.Expr("version + 1"),
	}
	if progress >= ch.Target {
		updates["completed"] = true
		updates["completed_at"] = now
	}

	res := s.db.WithContext(ctx).Model(&Completion{}).
		Where("id = ? AND version = ? AND completed = ?", existing.ID, existing.Version, false).
		Updates(updates)
	if res.Error != nil {
		return nil, errutil.Internal("failed to record challenge progress", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrConcurrentUpdate
	}

	existing.Progress = progress
	existing.Version++
	if progress >= ch.Target {
		existing.Completed = true
		existing.CompletedAt = &now
		zap.L().Info("challenge completed", zap.String("user_id", userID), zap.String("challenge_id", ch.ID), zap.String("type", string(ch.Type)))
	}
	return existing, nil
}

// ClaimReward credits a completed challenge's reward once. Claims stay open
// after the day of the challenge has passed.
func (s *Service) ClaimReward(ctx context.Context, userID, challengeID string) (*ClaimResult, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	var out *ClaimResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := s.challenges.WithTrx(tx).FindOne(ctx, &DailyChallenge{ID: challengeID})
		if err != nil {
			return errutil.Internal("failed to load challenge", err)
		}
		if ch == nil {
			return ErrChallengeNotFound
		}

		c, err := s.completions.WithTrx(tx).FindOne(ctx, &Completion{UserID: userID, ChallengeID: ch.ID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to load challenge progress", err)
		}
		if c == nil || !c.Completed || c.Progress < ch.Target {
			return ErrNotCompleted
		}
		if c.Claimed {
			return ErrAlreadyClaimed
		}

		res := tx.WithContext(ctx).Model(&Completion{}).
			Where("id = ? AND claimed = ?", c.ID, false).
			Updates(map[string]any{
				"claimed":    true,
				"claimed_at": s.calendar.Now(),
				"version":    gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return errutil.Internal("failed to claim challenge", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}

		receipt, err := s.ledger.Post(ctx, tx, ledger.Posting{
			UserID:      userID,
			Amount:      ch.Reward,
			Source:      ledger.SourceChallenge,
			ReferenceID: fmt.Sprintf("challenge:%s:%s", ch.ID, userID),
			Description: ch.Title,
			Metadata:    map[string]any{"challenge_id": ch.ID, "type": string(ch.Type), "day": ch.Day},
		})
		if errors.Is(err, ledger.ErrDuplicateReference) {
			return ErrAlreadyClaimed
		}
		if err != nil {
			return err
		}

		out = &ClaimResult{
			ChallengeID:    ch.ID,
			PointsEarned:   ch.Reward,
			Points:         receipt.Points,
			LifetimePoints: receipt.LifetimePoints,
			LeveledUp:      receipt.LeveledUp(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("challenge claimed", zap.String("user_id", userID), zap.String("challenge_id", challengeID), zap.Int64("reward", out.PointsEarned))
	return out, nil
}
