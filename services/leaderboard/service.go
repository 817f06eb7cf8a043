package leaderboard

import (
	"context"

	"progression-engine/pkg/config"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/featureflags"
	"progression-engine/pkg/rediskey"
	"progression-engine/pkg/repository"
	"progression-engine/services/user"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const rebuildBatch = 500

// Scoreboard is the slice of the redis client the leaderboard uses.
type Scoreboard interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	ZRevRank(ctx context.Context, key, member string) *redis.IntCmd
}

type Entry struct {
	Rank           int64  `json:"rank"`
	UserID         string `json:"user_id"`
	LifetimePoints int64  `json:"lifetime_points"`
}

type Service struct {
	board Scoreboard
	flags featureflags.FeatureFlag
	key   string
	size  int64

	users repository.Repository[user.User]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
	Redis  redis.UniversalClient    `optional:"true"`
	Flags  featureflags.FeatureFlag `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	s := &Service{
		flags: p.Flags,
		key:   rediskey.LeaderboardLifetime,
		size:  100,
		users: repository.ProvideStore[user.User](p.DB),
	}
	if p.Config != nil && p.Config.Progression.LeaderboardSize > 0 {
		s.size = p.Config.Progression.LeaderboardSize
	}
	if p.Redis != nil {
		s.board = p.Redis
	}
	return s
}

func (s *Service) enabled(ctx context.Context, userID string) bool {
	if s.board == nil {
		return false
	}
	return s.flags == nil || s.flags.Enabled(ctx, featureflags.FlagLeaderboard, userID, true)
}

// Sync records the user's lifetime points. ZADD overwrites the score, so
// replays are harmless. Failures only cost freshness and are logged.
func (s *Service) Sync(ctx context.Context, userID string, lifetimePoints int64) {
	if userID == "" || !s.enabled(ctx, userID) {
		return
	}
	if err := s.board.ZAdd(ctx, s.key, redis.Z{Score: float64(lifetimePoints), Member: userID}).Err(); err != nil {
		zap.L().Warn("failed to sync leaderboard", zap.String("user_id", userID), zap.Error(err))
	}
}

// Top returns the n best users. Without redis it reads the users table.
func (s *Service) Top(ctx context.Context, n int64) ([]*Entry, error) {
	if n <= 0 || n > s.size {
		n = s.size
	}

	if s.enabled(ctx, "") {
		zs, err := s.board.ZRevRangeWithScores(ctx, s.key, 0, n-1).Result()
		if err == nil {
			out := make([]*Entry, 0, len(zs))
			for i, z := range zs {
				id, _ := z.Member.(string)
				out = append(out, &Entry{Rank: int64(i + 1), UserID: id, LifetimePoints: int64(z.Score)})
			}
			return out, nil
		}
		zap.L().Warn("leaderboard read failed, falling back to database", zap.Error(err))
	}

	users, err := s.users.Find(ctx, nil,
		option.WithSortBy(option.QuerySortBy{SortBy: "lifetime_points", OrderBy: "desc", Allow: map[string]bool{"lifetime_points": true}}),
		option.WithLimit(int(n)),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load leaderboard", err)
	}
	out := make([]*Entry, 0, len(users))
	for i, u := range users {
		out = append(out, &Entry{Rank: int64(i + 1), UserID: u.ID, LifetimePoints: u.LifetimePoints})
	}
	return out, nil
}

// Rank is the 1-based position of userID, 0 when unranked.
func (s *Service) Rank(ctx context.Context, userID string) (int64, error) {
	if !s.enabled(ctx, userID) {
		return 0, nil
	}
	rank, err := s.board.ZRevRank(ctx, s.key, userID).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errutil.Internal("failed to read rank", err)
	}
	return rank + 1, nil
}

// Rebuild reloads the sorted set from the users table.
func (s *Service) Rebuild(ctx context.Context) error {
	if s.board == nil {
		return nil
	}

	var synced int
	for offset := 0; ; offset += rebuildBatch {
		users, err := s.users.Find(ctx, nil,
			option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "asc", Allow: map[string]bool{"id": true}}),
			option.WithLimit(rebuildBatch),
			option.WithOffset(offset),
		)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			break
		}

		members := make([]redis.Z, 0, len(users))
		for _, u := range users {
			members = append(members, redis.Z{Score: float64(u.LifetimePoints), Member: u.ID})
		}
		if err := s.board.ZAdd(ctx, s.key, members...).Err(); err != nil {
			return err
		}
		synced += len(users)
	}

	zap.L().Info("leaderboard rebuilt", zap.Int("users", synced))
	return nil
}

// HandleRebuild is the asynq handler for leaderboard:rebuild.
func (s *Service) HandleRebuild(ctx context.Context, _ *asynq.Task) error {
	return s.Rebuild(ctx)
}
