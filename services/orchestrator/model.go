package orchestrator

import (
	"progression-engine/services/achievement"
	"progression-engine/services/challenge"
	"progression-engine/services/progression"
)

// CompletionResult is the outcome of completing a habit for today.
type CompletionResult struct {
	HabitID              string                  `json:"habit_id"`
	PointsEarned         int64                   `json:"points_earned"`
	Critical             bool                    `json:"critical"`
	NewStreak            int                     `json:"new_streak"`
	LeveledUp            bool                    `json:"leveled_up"`
	Level                progression.Level       `json:"level"`
	Points               int64                   `json:"points"`
	LifetimePoints       int64                   `json:"lifetime_points"`
	UnlockedAchievements []*achievement.Unlocked `json:"unlocked_achievements"`
}

// ClaimResult is a challenge claim plus whatever the credit unlocked.
type ClaimResult struct {
	*challenge.ClaimResult
	UnlockedAchievements []*achievement.Unlocked `json:"unlocked_achievements"`
}

// Progress is one challenge increment a credited event contributes.
type Progress struct {
	Type      challenge.Type
	Increment int
}

// Credit describes an already committed mutation whose side effects still
// have to run: challenge progress, achievements and the leaderboard.
type Credit struct {
	UserID string
	// Streak is the habit streak the event produced, 0 when not a completion.
	Streak   int
	Progress []Progress
}

// Effects is what the side effects of a Credit produced.
type Effects struct {
	Unlocked       []*achievement.Unlocked
	Points         int64
	LifetimePoints int64
}

var hardDifficulties = map[progression.Difficulty]bool{
	progression.DifficultyHard:     true,
	progression.DifficultyVeryHard: true,
	progression.DifficultyEpic:     true,
}
