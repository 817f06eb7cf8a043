package leaderboard

import (
	"context"
	"errors"
	"sort"
	"testing"

	"progression-engine/pkg/featureflags"
	"progression-engine/services/testutil"
	"progression-engine/services/user"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// fakeBoard is an in-memory sorted set keyed by member.
type fakeBoard struct {
	scores map[string]float64
	err    error
}

func newFakeBoard() *fakeBoard { return &fakeBoard{scores: map[string]float64{}} }

func (f *fakeBoard) ZAdd(_ context.Context, _ string, members ...redis.Z) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, m := range members {
		f.scores[m.Member.(string)] = m.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeBoard) sorted() []redis.Z {
	out := make([]redis.Z, 0, len(f.scores))
	for m, s := range f.scores {
		out = append(out, redis.Z{Member: m, Score: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (f *fakeBoard) ZRevRangeWithScores(_ context.Context, _ string, start, stop int64) *redis.ZSliceCmd {
	if f.err != nil {
		return redis.NewZSliceCmdResult(nil, f.err)
	}
	all := f.sorted()
	if stop >= int64(len(all)) {
		stop = int64(len(all)) - 1
	}
	if start > stop {
		return redis.NewZSliceCmdResult([]redis.Z{}, nil)
	}
	return redis.NewZSliceCmdResult(all[start:stop+1], nil)
}

func (f *fakeBoard) ZRevRank(_ context.Context, _ string, member string) *redis.IntCmd {
	for i, z := range f.sorted() {
		if z.Member == member {
			return redis.NewIntResult(int64(i), nil)
		}
	}
	return redis.NewIntResult(0, redis.Nil)
}

func newTestService(t *testing.T, board Scoreboard) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &user.User{})
	svc := NewService(ServiceParams{DB: db})
	svc.board = board
	return svc, db
}

func TestSyncAndTop(t *testing.T) {
	board := newFakeBoard()
	svc, _ := newTestService(t, board)
	ctx := context.Background()

	svc.Sync(ctx, "u-1", 100)
	svc.Sync(ctx, "u-2", 300)
	svc.Sync(ctx, "u-3", 200)
	svc.Sync(ctx, "u-1", 400)

	top, err := svc.Top(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "u-1", top[0].UserID)
	require.Equal(t, int64(400), top[0].LifetimePoints)
	require.Equal(t, int64(2), top[1].Rank)

	rank, err := svc.Rank(ctx, "u-3")
	require.NoError(t, err)
	require.Equal(t, int64(3), rank)

	rank, err = svc.Rank(ctx, "nobody")
	require.NoError(t, err)
	require.Zero(t, rank)
}

func TestSyncRespectsFlag(t *testing.T) {
	board := newFakeBoard()
	svc, _ := newTestService(t, board)
	svc.flags = featureflags.Static{featureflags.FlagLeaderboard: false}

	svc.Sync(context.Background(), "u-1", 100)
	require.Empty(t, board.scores)
}

func TestTopFallsBackToDatabase(t *testing.T) {
	board := newFakeBoard()
	board.err = errors.New("redis down")
	svc, db := newTestService(t, board)

	require.NoError(t, db.Create(&[]user.User{
		{ID: "u-1", LifetimePoints: 50},
		{ID: "u-2", LifetimePoints: 500},
	}).Error)

	// a failing sync is swallowed
	svc.Sync(context.Background(), "u-1", 50)

	top, err := svc.Top(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, "u-2", top[0].UserID)

	noRedis, _ := newTestService(t, nil)
	top, err = noRedis.Top(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, top, 2)
}

func TestRebuild(t *testing.T) {
	board := newFakeBoard()
	svc, db := newTestService(t, board)

	require.NoError(t, db.Create(&[]user.User{
		{ID: "u-1", LifetimePoints: 10},
		{ID: "u-2", LifetimePoints: 20},
	}).Error)

	require.NoError(t, svc.Rebuild(context.Background()))
	require.Equal(t, float64(20), board.scores["u-2"])
	require.Len(t, board.scores, 2)
}
