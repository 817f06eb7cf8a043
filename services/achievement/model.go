package achievement

import "time"

// Achievement is static reference data. Predicate is a CEL expression over
// the Signal variables, e.g. "lifetime_points >= 1000".
type Achievement struct {
	ID          string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Name        string    `gorm:"column:name;size:100;not null" json:"name"`
	Description string    `gorm:"column:description" json:"description"`
	Icon        string    `gorm:"column:icon;size:32" json:"icon"`
	Predicate   string    `gorm:"column:predicate;not null" json:"-"`
	Reward      int64     `gorm:"column:reward;not null" json:"reward"`
	SortOrder   int       `gorm:"column:sort_order;not null" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"-"`
}

func (Achievement) TableName() string { return "achievements" }

type UserAchievement struct {
	ID            string    `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID        string    `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_user_achievements_user_achievement,priority:1" json:"user_id"`
	AchievementID string    `gorm:"column:achievement_id;size:64;not null;uniqueIndex:idx_user_achievements_user_achievement,priority:2" json:"achievement_id"`
	UnlockedAt    time.Time `gorm:"column:unlocked_at;not null" json:"unlocked_at"`
}

func (UserAchievement) TableName() string { return "user_achievements" }

// Predicate variables.
const (
	VarClicks          = "clicks"
	VarLifetimePoints  = "lifetime_points"
	VarStreakDays      = "streak_days"
	VarHabitsCompleted = "habits_completed"
)

// Signal carries the counters a triggering event may have moved.
type Signal struct {
	Clicks          int64
	LifetimePoints  int64
	StreakDays      int
	HabitsCompleted int64
}

func (s Signal) Attributes() map[string]any {
	return map[string]any{
		VarClicks:          s.Clicks,
		VarLifetimePoints:  s.LifetimePoints,
		VarStreakDays:      int64(s.StreakDays),
		VarHabitsCompleted: s.HabitsCompleted,
	}
}

// Unlocked is one achievement granted by an evaluation.
type Unlocked struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Reward     int64     `json:"reward"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// Status is an achievement as listed for one user.
type Status struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Reward      int64      `json:"reward"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

var definitions = []Achievement{
	{ID: "first_habit", Name: "First step", Description: "Complete your first habit", Icon: "footprints", Predicate: "habits_completed >= 1", Reward: 10},
	{ID: "habits_10", Name: "Getting serious", Description: "Complete 10 habits", Icon: "check", Predicate: "habits_completed >= 10", Reward: 50},
	{ID: "habits_100", Name: "Centurion", Description: "Complete 100 habits", Icon: "medal", Predicate: "habits_completed >= 100", Reward: 300},
	{ID: "streak_7", Name: "One week strong", Description: "Keep a 7 day streak", Icon: "flame", Predicate: "streak_days >= 7", Reward: 70},
	{ID: "streak_30", Name: "Unstoppable", Description: "Keep a 30 day streak", Icon: "fire", Predicate: "streak_days >= 30", Reward: 300},
	{ID: "points_1000", Name: "Collector", Description: "Earn 1,000 lifetime points", Icon: "coins", Predicate: "lifetime_points >= 1000", Reward: 100},
	{ID: "points_10000", Name: "Hoarder", Description: "Earn 10,000 lifetime points", Icon: "treasure", Predicate: "lifetime_points >= 10000", Reward: 500},
	{ID: "clicks_100", Name: "Clicker", Description: "Click 100 times", Icon: "pointer", Predicate: "clicks >= 100", Reward: 20},
	{ID: "clicks_1000", Name: "Click storm", Description: "Click 1,000 times", Icon: "zap", Predicate: "clicks >= 1000", Reward: 100},
}

// Definitions returns the built-in achievements in display order.
func Definitions() []Achievement {
	out := make([]Achievement, len(definitions))
	for i, d := range definitions {
		d.SortOrder = i + 1
		out[i] = d
	}
	return out
}
