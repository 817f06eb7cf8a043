package progression

import (
	"math"
	"math/rand/v2"
)

type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyMedium   Difficulty = "medium"
	DifficultyHard     Difficulty = "hard"
	DifficultyVeryHard Difficulty = "very_hard"
	DifficultyEpic     Difficulty = "epic"
)

// CriticalMultiplier doubles the base reward on a bonus roll.
const CriticalMultiplier = 2.0

type difficultyReward struct {
	base        int64
	bonusChance float64
}

var rewards = map[Difficulty]difficultyReward{
	DifficultyEasy:     {base: 15, bonusChance: 0.05},
	DifficultyMedium:   {base: 40, bonusChance: 0.10},
	DifficultyHard:     {base: 80, bonusChance: 0.15},
	DifficultyVeryHard: {base: 150, bonusChance: 0.20},
	DifficultyEpic:     {base: 300, bonusChance: 0.25},
}

func (d Difficulty) Valid() bool {
	_, ok := rewards[d]
	return ok
}

func (d Difficulty) BaseReward() int64 {
	return rewards[d].base
}

func (d Difficulty) BonusChance() float64 {
	return rewards[d].bonusChance
}

func (d Difficulty) String() string {
	return string(d)
}

// Difficulties lists the accepted values, easiest first.
func Difficulties() []Difficulty {
	return []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyVeryHard, DifficultyEpic}
}

// RandomSource yields uniform samples in [0, 1).
type RandomSource interface {
	Float64() float64
}

type defaultSource struct{}

func (defaultSource) Float64() float64 { return rand.Float64() }

// DefaultSource draws from the process-wide math/rand/v2 generator.
func DefaultSource() RandomSource { return defaultSource{} }

// FixedSource always returns the same sample. Useful to pin a roll.
type FixedSource float64

func (f FixedSource) Float64() float64 { return float64(f) }

type Roll struct {
	Points   int64 `json:"points"`
	Critical bool  `json:"critical"`
}

// RollReward draws one sample from src and computes the reward for difficulty.
// Unknown difficulties earn nothing.
func RollReward(src RandomSource, difficulty Difficulty, levelMultiplier float64) Roll {
	r, ok := rewards[difficulty]
	if !ok {
		return Roll{}
	}
	if src == nil {
		src = DefaultSource()
	}

	critical := src.Float64() < r.bonusChance
	value := float64(r.base)
	if critical {
		value *= CriticalMultiplier
	}
	value *= levelMultiplier

	// epsilon absorbs float error such as 40*1.1 = 44.000000000000004 or 43.99999
	return Roll{Points: int64(math.Floor(value + 1e-9)), Critical: critical}
}

// RewardBounds is the inclusive [min, max] a roll can produce.
func RewardBounds(difficulty Difficulty, levelMultiplier float64) (int64, int64) {
	r := rewards[difficulty]
	lo := int64(math.Floor(float64(r.base)*levelMultiplier + 1e-9))
	hi := int64(math.Floor(float64(r.base)*CriticalMultiplier*levelMultiplier + 1e-9))
	return lo, hi
}
