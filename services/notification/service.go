package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/db/pagination"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/repository"
	"progression-engine/pkg/task"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errutil.NotFound("notification not found", nil)

// Service owns the inbox. Delivery to devices is external; the worker stores
// what it handed over.
type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock clock.Clock

	inbox repository.Repository[Notification]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Clock clock.Clock
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		clock: p.Clock,
		inbox: repository.ProvideStore[Notification](p.DB),
	}
}

// HandleSend is the asynq handler for notification:send.
func (s *Service) HandleSend(ctx context.Context, t *asynq.Task) error {
	var msg Message
	if err := task.DecodePayload(t, &msg); err != nil {
		zap.L().Error("invalid notification payload", zap.Error(err))
		return err
	}
	if msg.UserID == "" {
		return fmt.Errorf("notification without user: %w", asynq.SkipRetry)
	}

	if _, err := s.Store(ctx, msg); err != nil {
		zap.L().Error("failed to store notification", zap.String("user_id", msg.UserID), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) Store(ctx context.Context, msg Message) (*Notification, error) {
	var data datatypes.JSON
	if len(msg.Data) > 0 {
		b, err := json.Marshal(msg.Data)
		if err != nil {
			return nil, errutil.ValidationFailed("notification data is not serializable", err)
		}
		data = datatypes.JSON(b)
	}

	n := &Notification{
		ID:        s.node.Generate().String(),
		UserID:    msg.UserID,
		Title:     msg.Title,
		Body:      msg.Body,
		Data:      data,
		CreatedAt: s.clock.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.inbox.Create(ctx, n); err != nil {
		return nil, errutil.Internal("failed to store notification", err)
	}
	return n, nil
}

// ListNotifications pages through the user's inbox, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID string, p pagination.Pagination) ([]*Notification, *pagination.PageInfo, error) {
	if userID == "" {
		return nil, nil, errutil.Unauthorized("missing authenticated user", nil)
	}

	p = p.Normalize()
	opts, err := pagination.NewestFirst(p)
	if err != nil {
		return nil, nil, errutil.BadRequest("invalid cursor", err)
	}

	rows, err := s.inbox.Find(ctx, &Notification{UserID: userID}, opts...)
	if err != nil {
		zap.L().Error("failed to list notifications", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, errutil.Internal("failed to list notifications", err)
	}

	data, info := pagination.BuildCursorPageInfo(rows, p.Limit, func(n *Notification) pagination.Cursor {
		return pagination.Cursor{CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339Nano), ID: n.ID}
	})
	return data, info, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if userID == "" {
		return errutil.Unauthorized("missing authenticated user", nil)
	}

	res := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ? AND read_at IS NULL", id, userID).
		Update("read_at", s.clock.Now())
	if res.Error != nil {
		return errutil.Internal("failed to mark notification read", res.Error)
	}
	if res.RowsAffected == 0 {
		n, err := s.inbox.FindOne(ctx, &Notification{ID: id, UserID: userID})
		if err != nil {
			return errutil.Internal("failed to load notification", err)
		}
		if n == nil {
			return ErrNotificationNotFound
		}
	}
	return nil
}
