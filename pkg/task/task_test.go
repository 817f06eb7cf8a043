package task

import (
	"testing"

	"progression-engine/pkg/config"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestQueuesAddsCustomNotificationQueue(t *testing.T) {
	cfg := &config.Config{}
	require.Equal(t, map[string]int{QueueCritical: 10, QueueDefault: 5, QueueLow: 3}, queues(cfg))

	cfg.Progression.NotificationQueue = "push"
	require.Equal(t, 3, queues(cfg)["push"])

	cfg.Progression.NotificationQueue = QueueCritical
	require.Equal(t, 10, queues(cfg)[QueueCritical])
}

func TestJSONTaskRoundTrip(t *testing.T) {
	type payload struct {
		Day string `json:"day"`
	}

	tk, err := NewJSONTask("challenge:materialize", payload{Day: "2025-03-10"})
	require.NoError(t, err)
	require.Equal(t, "challenge:materialize", tk.Type())

	var got payload
	require.NoError(t, DecodePayload(tk, &got))
	require.Equal(t, "2025-03-10", got.Day)

	err = DecodePayload(asynq.NewTask("challenge:materialize", []byte("{")), &got)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestNewJSONTaskRejectsUnencodable(t *testing.T) {
	_, err := NewJSONTask("notification:send", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
}
