package habit

import (
	"time"

	"progression-engine/services/progression"

	"gorm.io/gorm"
)

const DefaultCategory = "general"

// Habit is a recurring task owned by one user. LastCompletedAt holds the civil
// day of the last completion or freeze bridge, never an instant.
type Habit struct {
	ID                string                 `gorm:"column:id;primaryKey;size:32" json:"id"`
	OwnerID           string                 `gorm:"column:owner_id;size:64;not null;index;uniqueIndex:idx_habits_owner_slug,priority:1" json:"owner_id"`
	Name              string                 `gorm:"column:name;size:100;not null" json:"name"`
	Slug              string                 `gorm:"column:slug;size:128;not null;uniqueIndex:idx_habits_owner_slug,priority:2" json:"slug"`
	Difficulty        progression.Difficulty `gorm:"column:difficulty;size:16;not null" json:"difficulty"`
	Category          string                 `gorm:"column:category;size:50;not null" json:"category"`
	Streak            int                    `gorm:"column:streak;not null;default:0" json:"streak"`
	TotalCompleted    int64                  `gorm:"column:total_completed;not null;default:0" json:"total_completed"`
	LastCompletedAt   *time.Time             `gorm:"column:last_completed_at" json:"last_completed_at,omitempty"`
	FreezeCount       int                    `gorm:"column:freeze_count;not null;default:0" json:"freeze_count"`
	IsCurrentlyFrozen bool                   `gorm:"column:is_currently_frozen;not null" json:"is_currently_frozen"`
	IsActive          bool                   `gorm:"column:is_active;not null" json:"is_active"`
	Version           int64                  `gorm:"column:version;not null;default:0" json:"-"`
	CreatedAt         time.Time              `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time              `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt         gorm.DeletedAt         `gorm:"column:deleted_at;index" json:"-"`
}

func (Habit) TableName() string { return "habits" }

// LastDay returns the stored civil day, nil when the habit was never completed.
func (h *Habit) LastDay() *time.Time {
	if h.LastCompletedAt == nil {
		return nil
	}
	d := progression.AsDay(*h.LastCompletedAt)
	return &d
}

// Completion records one completed day. CompletedDay is the calendar key and
// carries the at-most-once-per-day guard.
type Completion struct {
	ID           string    `gorm:"column:id;primaryKey;size:32" json:"id"`
	HabitID      string    `gorm:"column:habit_id;size:32;not null;uniqueIndex:idx_habit_completions_habit_day,priority:1" json:"habit_id"`
	UserID       string    `gorm:"column:user_id;size:64;not null;index" json:"user_id"`
	CompletedDay string    `gorm:"column:completed_day;size:10;not null;uniqueIndex:idx_habit_completions_habit_day,priority:2" json:"completed_day"`
	CompletedAt  time.Time `gorm:"column:completed_at;not null" json:"completed_at"`
	PointsEarned int64     `gorm:"column:points_earned;not null" json:"points_earned"`
	Critical     bool      `gorm:"column:critical;not null" json:"critical"`
	StreakAfter  int       `gorm:"column:streak_after;not null" json:"streak_after"`
	CreatedAt    time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Completion) TableName() string { return "habit_completions" }

type CreateRequest struct {
	Name       string                 `json:"name" binding:"required"`
	Difficulty progression.Difficulty `json:"difficulty" binding:"required"`
	Category   string                 `json:"category"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Name       *string                 `json:"name"`
	Difficulty *progression.Difficulty `json:"difficulty"`
	Category   *string                 `json:"category"`
	IsActive   *bool                   `json:"is_active"`
}
