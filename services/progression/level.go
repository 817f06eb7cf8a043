package progression

import "math"

// Level is one tier of the lifetime points ladder.
type Level struct {
	Level                int     `json:"level"`
	Name                 string  `json:"name"`
	Threshold            int64   `json:"threshold"`
	XPMultiplier         float64 `json:"xp_multiplier"`
	DailyBonusMultiplier float64 `json:"daily_bonus_multiplier"`
	AdReward             int64   `json:"ad_reward"`
}

// Progress is the display position between the current tier and the next.
type Progress struct {
	Current  int64   `json:"current"`
	Required int64   `json:"required"`
	Percent  float64 `json:"percent"`
}

var levels = []Level{
	{Level: 1, Name: "Newcomer", Threshold: 0, XPMultiplier: 1.0, DailyBonusMultiplier: 1.0, AdReward: 10},
	{Level: 2, Name: "Explorer", Threshold: 100, XPMultiplier: 1.1, DailyBonusMultiplier: 1.1, AdReward: 12},
	{Level: 3, Name: "Achiever", Threshold: 250, XPMultiplier: 1.2, DailyBonusMultiplier: 1.2, AdReward: 15},
	{Level: 4, Name: "Adept", Threshold: 500, XPMultiplier: 1.3, DailyBonusMultiplier: 1.3, AdReward: 18},
	{Level: 5, Name: "Expert", Threshold: 1000, XPMultiplier: 1.5, DailyBonusMultiplier: 1.5, AdReward: 20},
	{Level: 6, Name: "Veteran", Threshold: 2500, XPMultiplier: 1.75, DailyBonusMultiplier: 1.6, AdReward: 25},
	{Level: 7, Name: "Elite", Threshold: 5000, XPMultiplier: 2.0, DailyBonusMultiplier: 1.75, AdReward: 30},
	{Level: 8, Name: "Master", Threshold: 10000, XPMultiplier: 2.25, DailyBonusMultiplier: 2.0, AdReward: 35},
	{Level: 9, Name: "Grandmaster", Threshold: 25000, XPMultiplier: 2.5, DailyBonusMultiplier: 2.25, AdReward: 40},
	{Level: 10, Name: "Champion", Threshold: 50000, XPMultiplier: 3.0, DailyBonusMultiplier: 2.5, AdReward: 50},
	{Level: 11, Name: "Legend", Threshold: 100000, XPMultiplier: 3.5, DailyBonusMultiplier: 2.75, AdReward: 60},
	{Level: 12, Name: "Mythic", Threshold: 250000, XPMultiplier: 4.0, DailyBonusMultiplier: 3.0, AdReward: 75},
}

// Levels returns a copy of the tier table, lowest first.
func Levels() []Level {
	out := make([]Level, len(levels))
	copy(out, levels)
	return out
}

// ResolveLevel returns the highest tier whose threshold does not exceed lifetimePoints.
// Negative input resolves to the first tier.
func ResolveLevel(lifetimePoints int64) Level {
	resolved := levels[0]
	for _, l := range levels[1:] {
		if l.Threshold > lifetimePoints {
			break
		}
		resolved = l
	}
	return resolved
}

// ProgressToNext reports points earned inside the current tier against the
// width of that tier. The final tier is always 100%.
func ProgressToNext(lifetimePoints int64) Progress {
	current := ResolveLevel(lifetimePoints)
	if current.Level == len(levels) {
		return Progress{Current: lifetimePoints - current.Threshold, Required: 0, Percent: 100}
	}

	next := levels[current.Level]
	earned := max(lifetimePoints-current.Threshold, 0)
	required := next.Threshold - current.Threshold
	percent := math.Min(100, math.Floor(float64(earned)/float64(required)*10000)/100)

	return Progress{Current: earned, Required: required, Percent: percent}
}
