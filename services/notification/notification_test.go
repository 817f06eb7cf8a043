package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/config"
	"progression-engine/pkg/db/pagination"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/featureflags"
	"progression-engine/pkg/taskname"
	"progression-engine/services/testutil"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeEnqueuer struct {
	err   error
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "t-1"}, nil
}

func newDispatcher(enq *fakeEnqueuer, flags featureflags.FeatureFlag) *Dispatcher {
	cfg := &config.Config{}
	cfg.Progression.NotificationQueue = "low"
	p := DispatcherParams{Config: cfg, Flags: flags}
	if enq != nil {
		p.Enqueuer = enq
	}
	return NewDispatcher(p)
}

func TestDispatcherEnqueues(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := newDispatcher(enq, featureflags.Static{})

	err := d.Notify(context.Background(), Message{UserID: "u-1", Title: "Habit done", Body: "+40 points", Data: map[string]any{"points": 40}})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, taskname.NotificationSend, enq.tasks[0].Type())
	require.Len(t, enq.opts[0], 2)

	var msg Message
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &msg))
	require.Equal(t, "u-1", msg.UserID)
	require.Equal(t, "+40 points", msg.Body)
}

func TestDispatcherRespectsFlag(t *testing.T) {
	enq := &fakeEnqueuer{}
	d := newDispatcher(enq, featureflags.Static{featureflags.FlagNotifications: false})

	require.NoError(t, d.Notify(context.Background(), Message{UserID: "u-1", Title: "x"}))
	require.Empty(t, enq.tasks)
}

func TestDispatcherFailureIsExternal(t *testing.T) {
	d := newDispatcher(&fakeEnqueuer{err: errors.New("redis down")}, nil)

	err := d.Notify(context.Background(), Message{UserID: "u-1", Title: "x"})
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadGateway, errutil.StatusOf(err))
	require.Equal(t, errutil.ReasonExternalService, errutil.ReasonOf(err))

	err = newDispatcher(nil, nil).Notify(context.Background(), Message{UserID: "u-1"})
	require.Equal(t, errutil.ReasonExternalService, errutil.ReasonOf(err))
}

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	db := testutil.NewTestDB(t, &Notification{})
	fc := clock.NewFakeClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	return NewService(ServiceParams{DB: db, Node: testutil.NewNode(t), Clock: fc}), fc
}

func TestHandleSendStoresInInbox(t *testing.T) {
	svc, fc := newTestService(t)
	ctx := context.Background()

	for _, title := range []string{"first", "second", "third"} {
		payload, _ := json.Marshal(Message{UserID: "u-1", Title: title, Data: map[string]any{"k": title}})
		require.NoError(t, svc.HandleSend(ctx, asynq.NewTask(taskname.NotificationSend, payload)))
		fc.Advance(time.Minute)
	}

	page, info, err := svc.ListNotifications(ctx, "u-1", pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)
	require.Equal(t, "third", page[0].Title)
	require.JSONEq(t, `{"k":"third"}`, string(page[0].Data))

	others, _, err := svc.ListNotifications(ctx, "u-2", pagination.Pagination{})
	require.NoError(t, err)
	require.Empty(t, others)
}

func TestHandleSendRejectsBadPayload(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.HandleSend(context.Background(), asynq.NewTask(taskname.NotificationSend, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	payload, _ := json.Marshal(Message{Title: "orphan"})
	err = svc.HandleSend(context.Background(), asynq.NewTask(taskname.NotificationSend, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMarkRead(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	n, err := svc.Store(ctx, Message{UserID: "u-1", Title: "hi"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, "u-1", n.ID))
	// already read is fine
	require.NoError(t, svc.MarkRead(ctx, "u-1", n.ID))

	require.ErrorIs(t, svc.MarkRead(ctx, "u-2", n.ID), ErrNotificationNotFound)
}
