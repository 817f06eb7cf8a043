package ledger

import (
	"context"
	"encoding/json"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/db"
	"progression-engine/pkg/db/option"
	"progression-engine/pkg/db/pagination"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/services/progression"
	"progression-engine/services/user"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = errutil.UnprocessableEntity("insufficient points", nil,
		errutil.WithReason(errutil.ReasonInsufficientBalance))
	ErrDuplicateReference = errutil.Conflict("reference_id already exists", nil,
		errutil.WithReason(errutil.ReasonDuplicateReference))
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock
	users *user.Service

	entries repository.Repository[Entry]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clock.Clock
	Users *user.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: p.Clock,
		users: p.Users,

		entries: repository.ProvideStore[Entry](p.DB),
	}
}

func spanFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

func (p Posting) validate() error {
	if p.UserID == "" {
		return errutil.Unauthorized("missing authenticated user", nil)
	}
	if p.Amount == 0 {
		return errutil.ValidationFailed("amount must not be zero", nil,
			errutil.WithDetails(errutil.Detail{Field: "amount", Message: "must not be zero"}))
	}
	if !p.Source.Valid() {
		return errutil.ValidationFailed("unknown points source", nil,
			errutil.WithDetails(errutil.Detail{Field: "source", Message: string(p.Source)}))
	}
	info := p.Source.Info()
	if p.Amount > 0 && !info.Credit {
		return errutil.ValidationFailed("source cannot credit points", nil,
			errutil.WithDetails(errutil.Detail{Field: "source", Message: string(p.Source)}))
	}
	if p.Amount < 0 && !info.Debit {
		return errutil.ValidationFailed("source cannot debit points", nil,
			errutil.WithDetails(errutil.Detail{Field: "source", Message: string(p.Source)}))
	}
	if p.ReferenceID == "" {
		return errutil.ValidationFailed("reference_id is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "reference_id", Message: "required"}))
	}
	return nil
}

// Post applies p to the user's balance and appends the matching history entry.
// With a non-nil tx it joins the caller's transaction, otherwise it opens one.
func (s *Service) Post(ctx context.Context, tx *gorm.DB, p Posting) (*Receipt, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if tx != nil {
		return s.post(ctx, tx, p)
	}

	var receipt *Receipt
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.post(ctx, tx, p)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	}); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (s *Service) post(ctx context.Context, tx *gorm.DB, p Posting) (*Receipt, error) {
	logFields := append(spanFields(ctx),
		zap.String("user_id", p.UserID),
		zap.String("source", string(p.Source)),
		zap.String("reference_id", p.ReferenceID),
	)
	entries := s.entries.WithTrx(tx)

	// pre-check only; the unique index on reference_id is the real guard
	if exist, err := entries.FindOne(ctx, &Entry{ReferenceID: p.ReferenceID}); err != nil {
		return nil, errutil.Internal("failed to check reference", err)
	} else if exist != nil {
		zap.L().With(logFields...).Warn("reference_id already exists")
		return nil, ErrDuplicateReference
	}

	before, err := s.users.Ensure(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"points":  gorm.Expr("points + ?", p.Amount),
		"version": gorm.Expr("version + 1"),
	}
	q := tx.WithContext(ctx).Model(&user.User{}).Where("id = ?", p.UserID)
	if p.Amount > 0 {
		updates["lifetime_points"] = gorm.Expr("lifetime_points + ?", p.Amount)
	} else {
		q = q.Where("points >= ?", -p.Amount)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		zap.L().With(logFields...).Error("failed to update balance", zap.Error(res.Error))
		return nil, errutil.Internal("failed to update balance", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientBalance
	}

	after, err := s.users.Ensure(ctx, tx, p.UserID)
	if err != nil {
		return nil, err
	}

	last, err := entries.FindOne(ctx, &Entry{UserID: p.UserID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "desc",
			Allow:   map[string]bool{"sequence": true},
		}),
		option.WithLockingUpdate(),
	)
	if err != nil {
		return nil, errutil.Internal("failed to load last entry", err)
	}

	var (
		previousHash       = GenesisHash
		sequence     int64 = 1
	)
	if last != nil {
		previousHash = last.Hash
		sequence = last.Sequence + 1
	}

	var meta datatypes.JSON
	if len(p.Metadata) > 0 {
		b, err := json.Marshal(p.Metadata)
		if err != nil {
			return nil, errutil.ValidationFailed("metadata is not serializable", err)
		}
		meta = datatypes.JSON(b)
	}

	entry := &Entry{
		ID:           s.node.Generate().String(),
		UserID:       p.UserID,
		Sequence:     sequence,
		Amount:       p.Amount,
		Source:       p.Source,
		ReferenceID:  p.ReferenceID,
		Description:  p.Description,
		BalanceAfter: after.Points,
		PreviousHash: previousHash,
		Metadata:     meta,
		CreatedAt:    s.clock.Now().UTC().Truncate(time.Microsecond),
	}
	entry.Hash = entry.GenerateHash()

	if err := entries.Create(ctx, entry); err != nil {
		if db.IsUniqueViolation(err) {
			zap.L().With(logFields...).Warn("reference_id raced with another posting")
			return nil, ErrDuplicateReference
		}
		zap.L().With(logFields...).Error("failed to append entry", zap.Error(err))
		return nil, errutil.Internal("failed to append entry", err)
	}

	zap.L().With(logFields...).Debug("points posted",
		zap.Int64("amount", p.Amount),
		zap.Int64("balance_after", entry.BalanceAfter),
	)

	return &Receipt{
		Entry:                  entry,
		Points:                 after.Points,
		LifetimePoints:         after.LifetimePoints,
		PreviousLifetimePoints: before.LifetimePoints,
	}, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &Balance{
		UserID:         u.ID,
		Points:         u.Points,
		LifetimePoints: u.LifetimePoints,
		StreakDays:     u.StreakDays,
		Level:          progression.ResolveLevel(u.LifetimePoints),
		Progress:       progression.ProgressToNext(u.LifetimePoints),
	}, nil
}

// ListEntries pages through a user's history, newest first.
func (s *Service) ListEntries(ctx context.Context, userID string, p pagination.Pagination) ([]*Entry, *pagination.PageInfo, error) {
	if userID == "" {
		return nil, nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	p = p.Normalize()
	opts, err := pagination.NewestFirst(p)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	entries, err := s.entries.Find(ctx, &Entry{UserID: userID}, opts...)
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to list entries", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, errutil.Internal("failed to list entries", err)
	}

	data, info := pagination.BuildCursorPageInfo(entries, p.Limit, func(e *Entry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano), ID: e.ID}
	})
	return data, info, nil
}

// VerifyChain recomputes every hash of the user's history and checks that
// the running sum of amounts matches each recorded balance.
func (s *Service) VerifyChain(ctx context.Context, userID string) (*ChainReport, error) {
	if userID == "" {
		return nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	entries, err := s.entries.Find(ctx, &Entry{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "sequence",
			OrderBy: "asc",
			Allow:   map[string]bool{"sequence": true},
		}),
	)
	if err != nil {
		zap.L().With(spanFields(ctx)...).Error("failed to load entries", zap.String("user_id", userID), zap.Error(err))
		return nil, errutil.Internal("failed to load entries", err)
	}

	return verify(entries), nil
}

func verify(entries []*Entry) *ChainReport {
	lastHash := GenesisHash
	var balance int64
	for i, entry := range entries {
		balance += entry.Amount
		if entry.Sequence != int64(i+1) ||
			entry.PreviousHash != lastHash ||
			entry.Hash != entry.GenerateHash() ||
			entry.BalanceAfter != balance {
			return &ChainReport{Valid: false, Entries: len(entries), BrokenAt: entry.ID}
		}
		lastHash = entry.Hash
	}
	return &ChainReport{Valid: true, Entries: len(entries)}
}
