package notification

import (
	"context"

	"progression-engine/pkg/config"
	"progression-engine/pkg/errutil"
	"progression-engine/pkg/featureflags"
	"progression-engine/pkg/task"
	"progression-engine/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

const maxRetry = 3

// Notifier hands a message to the delivery pipeline. Callers treat every
// error as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Dispatcher is the asynq backed Notifier.
type Dispatcher struct {
	enqueuer task.Enqueuer
	flags    featureflags.FeatureFlag
	queue    string
}

type DispatcherParams struct {
	fx.In
	Config   *config.Config
	Enqueuer task.Enqueuer            `optional:"true"`
	Flags    featureflags.FeatureFlag `optional:"true"`
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	queue := task.QueueLow
	if p.Config != nil && p.Config.Progression.NotificationQueue != "" {
		queue = p.Config.Progression.NotificationQueue
	}
	return &Dispatcher{enqueuer: p.Enqueuer, flags: p.Flags, queue: queue}
}

func externalError(msg string, err error) error {
	return errutil.BadGateway(msg, err, errutil.WithReason(errutil.ReasonExternalService))
}

func (d *Dispatcher) Notify(ctx context.Context, msg Message) error {
	if d.flags != nil && !d.flags.Enabled(ctx, featureflags.FlagNotifications, msg.UserID, true) {
		return nil
	}
	if d.enqueuer == nil {
		return externalError("notification pipeline is not configured", nil)
	}

	t, err := task.NewJSONTask(taskname.NotificationSend, msg)
	if err != nil {
		return externalError("failed to encode notification", err)
	}

	if _, err := d.enqueuer.Enqueue(ctx, t,
		asynq.Queue(d.queue),
		asynq.MaxRetry(maxRetry),
	); err != nil {
		return externalError("failed to dispatch notification", err)
	}
	return nil
}
