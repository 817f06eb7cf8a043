package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/db/pagination"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/services/progression"
	"progression-engine/services/testutil"
	"progression-engine/services/user"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type repoMock[T any] struct {
	withTrxFn     func(tx *gorm.DB) repository.Repository[T]
	findFn        func(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	findOneFn     func(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	createFn      func(ctx context.Context, resource *T) error
	updateFn      func(ctx context.Context, resourceID string, resource any) error
	batchCreateFn func(ctx context.Context, resources []*T) error
	batchUpdateFn func(ctx context.Context, resources []*T) error
	countFn       func(ctx context.Context, query *T) (int64, error)
}

func (m *repoMock[T]) WithTrx(tx *gorm.DB) repository.Repository[T] {
	if m.withTrxFn != nil {
		return m.withTrxFn(tx)
	}
	return m
}

func (m *repoMock[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *repoMock[T]) Create(ctx context.Context, resource *T) error {
	if m.createFn != nil {
		return m.createFn(ctx, resource)
	}
	return nil
}

func (m *repoMock[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, resourceID, resource)
	}
	return nil
}

func (m *repoMock[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if m.batchCreateFn != nil {
		return m.batchCreateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	if m.batchUpdateFn != nil {
		return m.batchUpdateFn(ctx, resources)
	}
	return nil
}

func (m *repoMock[T]) Count(ctx context.Context, query *T) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, query)
	}
	return 0, nil
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewTestDB(t, &user.User{}, &Entry{})
	fc := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	users := user.NewService(user.ServiceParams{DB: db, Calendar: progression.NewCalendar(time.UTC, fc)})
	return NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Clock: fc, Users: users}), db
}

func credit(userID, ref string, amount int64) Posting {
	return Posting{UserID: userID, Amount: amount, Source: SourceHabitCompletion, ReferenceID: ref, Description: "test"}
}

func TestNewService(t *testing.T) {
	svc, _ := newTestService(t)
	require.NotNil(t, svc.entries)
	require.NotNil(t, svc.users)
}

func TestPostCreditThenDebit(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Post(ctx, nil, credit("u-1", "ref-1", 80))
	require.NoError(t, err)
	require.Equal(t, int64(80), r.Points)
	require.Equal(t, int64(80), r.LifetimePoints)
	require.Equal(t, int64(1), r.Entry.Sequence)
	require.Equal(t, GenesisHash, r.Entry.PreviousHash)

	r, err = svc.Post(ctx, nil, Posting{UserID: "u-1", Amount: -50, Source: SourceStreakFreezePurchase, ReferenceID: "ref-2"})
	require.NoError(t, err)
	require.Equal(t, int64(30), r.Points)
	require.Equal(t, int64(80), r.LifetimePoints, "spending never lowers lifetime points")
	require.Equal(t, int64(30), r.Entry.BalanceAfter)

	report, err := svc.VerifyChain(ctx, "u-1")
	require.NoError(t, err)
	require.True(t, report.Valid)
	require.Equal(t, 2, report.Entries)
}

func TestPostDebitInsufficientBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Post(ctx, nil, credit("u-1", "ref-1", 40))
	require.NoError(t, err)

	_, err = svc.Post(ctx, nil, Posting{UserID: "u-1", Amount: -50, Source: SourceStreakFreezePurchase, ReferenceID: "ref-2"})
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, errutil.ReasonInsufficientBalance, errutil.ReasonOf(err))

	balance, err := svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(40), balance.Points)

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestPostDuplicateReference(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.Post(ctx, nil, credit("u-1", "habit:1:2025-03-10", 40))
	require.NoError(t, err)

	_, err = svc.Post(ctx, nil, credit("u-1", "habit:1:2025-03-10", 40))
	require.ErrorIs(t, err, ErrDuplicateReference)

	balance, err := svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, int64(40), balance.Points)

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestPostValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		p      Posting
		status errutil.CoreStatus
	}{
		{"missing user", Posting{Amount: 1, Source: SourceClick, ReferenceID: "r"}, errutil.StatusUnauthorized},
		{"zero amount", Posting{UserID: "u", Source: SourceClick, ReferenceID: "r"}, errutil.StatusValidationFailed},
		{"unknown source", Posting{UserID: "u", Amount: 1, Source: "lottery", ReferenceID: "r"}, errutil.StatusValidationFailed},
		{"credit-only source debited", Posting{UserID: "u", Amount: -1, Source: SourceClick, ReferenceID: "r"}, errutil.StatusValidationFailed},
		{"debit-only source credited", Posting{UserID: "u", Amount: 1, Source: SourceStreakFreezePurchase, ReferenceID: "r"}, errutil.StatusValidationFailed},
		{"missing reference", Posting{UserID: "u", Amount: 1, Source: SourceClick}, errutil.StatusValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Post(ctx, nil, tt.p)
			require.Equal(t, tt.status, errutil.StatusOf(err))
		})
	}
}

func TestPostJoinsCallerTransaction(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	rollback := errors.New("rollback")
	err := db.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Post(ctx, tx, credit("u-1", "ref-1", 15)); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	var count int64
	require.NoError(t, db.Model(&Entry{}).Count(&count).Error)
	require.Zero(t, count)

	balance, err := svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	require.Zero(t, balance.Points)
}

func TestReceiptLeveledUp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Post(ctx, nil, credit("u-1", "ref-1", 99))
	require.NoError(t, err)
	require.False(t, r.LeveledUp())

	r, err = svc.Post(ctx, nil, credit("u-1", "ref-2", 1))
	require.NoError(t, err)
	require.True(t, r.LeveledUp())

	balance, err := svc.GetBalance(ctx, "u-1")
	require.NoError(t, err)
	require.Equal(t, 2, balance.Level.Level)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	for _, ref := range []string{"a", "b", "c"} {
		_, err := svc.Post(ctx, nil, credit("u-1", ref, 10))
		require.NoError(t, err)
	}

	var second Entry
	require.NoError(t, db.Where("user_id = ? AND sequence = ?", "u-1", 2).First(&second).Error)
	require.NoError(t, db.Model(&Entry{}).Where("id = ?", second.ID).Update("amount", 500).Error)

	report, err := svc.VerifyChain(ctx, "u-1")
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Equal(t, second.ID, report.BrokenAt)
}

func TestVerifyChainWithMockedEntries(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &Entry{ID: "1", UserID: "u", Sequence: 1, Amount: 10, Source: SourceClick, ReferenceID: "r1", BalanceAfter: 10, PreviousHash: GenesisHash, CreatedAt: at}
	first.Hash = first.GenerateHash()
	second := &Entry{ID: "2", UserID: "u", Sequence: 2, Amount: 5, Source: SourceClick, ReferenceID: "r2", BalanceAfter: 15, PreviousHash: first.Hash, CreatedAt: at}
	second.Hash = second.GenerateHash()

	svc := &Service{
		entries: &repoMock[Entry]{
			findFn: func(ctx context.Context, _ *Entry, opts ...option.QueryOption) ([]*Entry, error) {
				return []*Entry{first, second}, nil
			},
		},
	}

	report, err := svc.VerifyChain(context.Background(), "u")
	require.NoError(t, err)
	require.True(t, report.Valid)

	second.BalanceAfter = 99
	second.Hash = second.GenerateHash()
	report, err = svc.VerifyChain(context.Background(), "u")
	require.NoError(t, err)
	require.False(t, report.Valid)
	require.Equal(t, "2", report.BrokenAt)
}

func TestVerifyChainRepositoryError(t *testing.T) {
	svc := &Service{
		entries: &repoMock[Entry]{
			findFn: func(ctx context.Context, _ *Entry, opts ...option.QueryOption) ([]*Entry, error) {
				return nil, errors.New("db down")
			},
		},
	}

	_, err := svc.VerifyChain(context.Background(), "u")
	require.Equal(t, errutil.StatusInternal, errutil.StatusOf(err))
}

func TestListEntriesPaginates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, ref := range []string{"a", "b", "c"} {
		_, err := svc.Post(ctx, nil, credit("u-1", ref, 10))
		require.NoError(t, err)
	}
	_, err := svc.Post(ctx, nil, credit("u-2", "other", 10))
	require.NoError(t, err)

	page, info, err := svc.ListEntries(ctx, "u-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)

	rest, info, err := svc.ListEntries(ctx, "u-1", pagination.Pagination{Limit: 2, Cursor: info.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.False(t, info.HasMore)

	seen := map[string]bool{}
	for _, e := range append(page, rest...) {
		require.Equal(t, "u-1", e.UserID)
		seen[e.ID] = true
	}
	require.Len(t, seen, 3)

	_, _, err = svc.ListEntries(ctx, "u-1", pagination.Pagination{Cursor: "%%%"})
	require.Equal(t, errutil.StatusBadRequest, errutil.StatusOf(err))
}

func TestSourcesMetadata(t *testing.T) {
	require.Len(t, Sources(), 9)

	s, err := ParseSource("ad_watch")
	require.NoError(t, err)
	require.Equal(t, "Ad watched", s.Info().Label)

	_, err = ParseSource("jackpot")
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))

	require.True(t, SourceStreakFreezePurchase.Info().Debit)
	require.False(t, SourceStreakFreezePurchase.Info().Credit)
}

func TestGenerateReference(t *testing.T) {
	ref, err := GenerateReference("freeze", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Regexp(t, `^freeze:20250310-[0-9A-F]{8}$`, ref)
}
