package user

import "time"

// User is the progression state of an identity owned by the external identity
// provider. Points is spendable; LifetimePoints only grows and drives the level.
type User struct {
	ID              string     `gorm:"column:id;primaryKey;size:64" json:"id"`
	Points          int64      `gorm:"column:points;not null;default:0" json:"points"`
	LifetimePoints  int64      `gorm:"column:lifetime_points;not null;default:0" json:"lifetime_points"`
	StreakDays      int        `gorm:"column:streak_days;not null;default:0" json:"streak_days"`
	LastActiveDay   *time.Time `gorm:"column:last_active_day" json:"last_active_day,omitempty"`
	Clicks          int64      `gorm:"column:clicks;not null;default:0" json:"clicks"`
	HabitsCompleted int64      `gorm:"column:habits_completed;not null;default:0" json:"habits_completed"`
	Version         int64      `gorm:"column:version;not null;default:0" json:"-"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Activity is the set of counter increments one mutation applies.
type Activity struct {
	Clicks          int64
	HabitsCompleted int64
}
