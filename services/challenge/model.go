package challenge

import (
	"time"

	"progression-engine/services/progression"
)

// Type names the signal a challenge counts.
type Type string

const (
	TypeCompleteHabits    Type = "complete_habits"
	TypeCompleteHardHabit Type = "complete_hard_habit"
	TypeEarnPoints        Type = "earn_points"
	TypeClick             Type = "click"
	TypeWatchAd           Type = "watch_ad"
)

// Template is one entry of the pool a day's set is drawn from. The reward is
// rolled inside the bracket's range when the set is materialized.
type Template struct {
	Type        Type
	Title       string
	Description string
	Target      int
	Bracket     progression.Difficulty
}

var templates = []Template{
	{Type: TypeCompleteHabits, Title: "Warm up", Description: "Complete 2 habits", Target: 2, Bracket: progression.DifficultyEasy},
	{Type: TypeCompleteHabits, Title: "Busy day", Description: "Complete 5 habits", Target: 5, Bracket: progression.DifficultyHard},
	{Type: TypeCompleteHardHabit, Title: "Go hard", Description: "Complete a hard habit", Target: 1, Bracket: progression.DifficultyMedium},
	{Type: TypeEarnPoints, Title: "Point hunter", Description: "Earn 100 points", Target: 100, Bracket: progression.DifficultyMedium},
	{Type: TypeEarnPoints, Title: "Point hoarder", Description: "Earn 300 points", Target: 300, Bracket: progression.DifficultyVeryHard},
	{Type: TypeClick, Title: "Clicker", Description: "Click 50 times", Target: 50, Bracket: progression.DifficultyEasy},
	{Type: TypeWatchAd, Title: "Sponsor break", Description: "Watch 3 ads", Target: 3, Bracket: progression.DifficultyEasy},
}

// Templates returns a copy of the template pool.
func Templates() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// Set marks a materialized day. Its primary key lets exactly one
// materialization win per day.
type Set struct {
	Day       string    `gorm:"column:day;primaryKey;size:10" json:"day"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Set) TableName() string { return "challenge_sets" }

type DailyChallenge struct {
	ID          string                 `gorm:"column:id;primaryKey;size:32" json:"id"`
	Type        Type                   `gorm:"column:type;size:32;not null;uniqueIndex:idx_daily_challenges_type_day,priority:1" json:"type"`
	Day         string                 `gorm:"column:day;size:10;not null;index;uniqueIndex:idx_daily_challenges_type_day,priority:2" json:"day"`
	Title       string                 `gorm:"column:title;size:100;not null" json:"title"`
	Description string                 `gorm:"column:description" json:"description"`
	Target      int                    `gorm:"column:target;not null" json:"target"`
	Reward      int64                  `gorm:"column:reward;not null" json:"reward"`
	Bracket     progression.Difficulty `gorm:"column:bracket;size:16;not null" json:"bracket"`
	CreatedAt   time.Time              `gorm:"column:created_at" json:"created_at"`
}

func (DailyChallenge) TableName() string { return "daily_challenges" }

// Completion is a user's progress on one challenge.
type Completion struct {
	ID          string     `gorm:"column:id;primaryKey;size:32" json:"id"`
	UserID      string     `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_challenge_completions_user_challenge,priority:1" json:"user_id"`
	ChallengeID string     `gorm:"column:challenge_id;size:32;not null;uniqueIndex:idx_challenge_completions_user_challenge,priority:2" json:"challenge_id"`
	Progress    int        `gorm:"column:progress;not null" json:"progress"`
	Completed   bool       `gorm:"column:completed;not null" json:"completed"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	Claimed     bool       `gorm:"column:claimed;not null" json:"claimed"`
	ClaimedAt   *time.Time `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	Version     int64      `gorm:"column:version;not null;default:0" json:"-"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Completion) TableName() string { return "challenge_completions" }

// UserChallenge is a challenge of the day joined with the caller's progress.
type UserChallenge struct {
	ID          string `json:"id"`
	Type        Type   `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Day         string `json:"day"`
	Target      int    `json:"target"`
	Progress    int    `json:"progress"`
	Completed   bool   `json:"completed"`
	Claimed     bool   `json:"claimed"`
	Reward      int64  `json:"reward"`
}

type ClaimResult struct {
	ChallengeID    string `json:"challenge_id"`
	PointsEarned   int64  `json:"points_earned"`
	Points         int64  `json:"points"`
	LifetimePoints int64  `json:"lifetime_points"`
	LeveledUp      bool   `json:"leveled_up"`
}
