package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"progression-engine/pkg/clock"
	"progression-engine/pkg/task"
	"progression-engine/pkg/taskname"
	"progression-engine/services/challenge"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Materializer creates the challenge set of a day.
type Materializer interface {
	EnsureChallenges(ctx context.Context, day string) ([]*challenge.DailyChallenge, error)
}

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    clock.Clock
	enqueuer task.Enqueuer

	challenges Materializer
}

type Params struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Clock    clock.Clock
	Enqueuer task.Enqueuer `optional:"true"`

	Challenges *challenge.Service `optional:"true"`
}

func NewService(p Params) *Service {
	s := &Service{
		db:       p.DB,
		node:     p.Node,
		clock:    p.Clock,
		enqueuer: p.Enqueuer,
	}
	if p.Challenges != nil {
		s.challenges = p.Challenges
	}
	return s
}

// EnqueueMaterialize records a pending job for day and hands it to the worker.
func (s *Service) EnqueueMaterialize(ctx context.Context, day string) error {
	if s.enqueuer == nil {
		return fmt.Errorf("no task enqueuer configured")
	}

	job := Job{
		ID:     s.node.Generate().String(),
		Type:   taskname.ChallengeMaterialize,
		Day:    day,
		Status: JobPending,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return err
	}

	t, err := task.NewJSONTask(taskname.ChallengeMaterialize, materializePayload{JobID: job.ID, Day: day})
	if err != nil {
		return err
	}
	_, err = s.enqueuer.Enqueue(ctx, t,
		asynq.Queue(task.QueueDefault),
		asynq.Unique(12*time.Hour),
	)
	if err != nil {
		s.finish(ctx, job.ID, err)
		return err
	}

	zap.L().Info("enqueued challenge materialization", zap.String("day", day), zap.String("job_id", job.ID))
	return nil
}

// HandleMaterialize is the asynq handler for challenge:materialize.
func (s *Service) HandleMaterialize(ctx context.Context, t *asynq.Task) error {
	var payload materializePayload
	if err := task.DecodePayload(t, &payload); err != nil {
		zap.L().Error("invalid materialize payload", zap.Error(err))
		return err
	}

	zap.L().Info("processing challenge materialization", zap.String("day", payload.Day))
	return s.RunMaterialize(ctx, payload.JobID, payload.Day)
}

func (s *Service) RunMaterialize(ctx context.Context, jobID, day string) error {
	if s.challenges == nil {
		return fmt.Errorf("no challenge service configured")
	}

	now := s.clock.Now()
	if jobID == "" {
		jobID = s.node.Generate().String()
		if err := s.db.WithContext(ctx).Create(&Job{
			ID: jobID, Type: taskname.ChallengeMaterialize, Day: day, Status: JobRunning, StartedAt: &now,
		}).Error; err != nil {
			return err
		}
	} else {
		s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
			"status":     JobRunning,
			"started_at": now,
		})
	}

	set, err := s.challenges.EnsureChallenges(ctx, day)
	if err != nil {
		zap.L().Error("failed to materialize challenges", zap.String("day", day), zap.Error(err))
		s.finish(ctx, jobID, err)
		return err
	}

	types := make([]string, 0, len(set))
	for _, c := range set {
		types = append(types, string(c.Type))
	}
	meta, _ := json.Marshal(map[string]any{"types": types})
	s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"metadata": datatypes.JSON(meta),
	})
	s.finish(ctx, jobID, nil)

	zap.L().Info("challenge materialization finished", zap.String("day", day), zap.Int("count", len(set)))
	return nil
}

func (s *Service) finish(ctx context.Context, jobID string, cause error) {
	updates := map[string]any{
		"status":       JobSuccess,
		"completed_at": s.clock.Now(),
	}
	if cause != nil {
		updates["status"] = JobFailed
		updates["error_msg"] = cause.Error()
	}
	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		zap.L().Warn("failed to update job status", zap.String("job_id", jobID), zap.Error(err))
	}
}
