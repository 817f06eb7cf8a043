package ledger

import "progression-engine/pkg/errutil"

// Source is the closed set of reasons a balance can change.
type Source string

const (
	SourceHabitCompletion      Source = "habit_completion"
	SourceAdWatch              Source = "ad_watch"
	SourceClick                Source = "click"
	SourceReferral             Source = "referral"
	SourceAdminGift            Source = "admin_gift"
	SourceStreakFreezePurchase Source = "streak_freeze_purchase"
	SourceAchievement          Source = "achievement"
	SourceChallenge            Source = "challenge"
	SourceGame                 Source = "game"
)

// SourceInfo is the display metadata of a Source and the directions it may post.
type SourceInfo struct {
	Source   Source `json:"source"`
	Label    string `json:"label"`
	Icon     string `json:"icon"`
	Credit   bool   `json:"credit"`
	Debit    bool   `json:"debit"`
	Category string `json:"category"`
}

var sources = []SourceInfo{
	{Source: SourceHabitCompletion, Label: "Habit completed", Icon: "check-circle", Credit: true, Category: "habits"},
	{Source: SourceAdWatch, Label: "Ad watched", Icon: "play", Credit: true, Category: "engagement"},
	{Source: SourceClick, Label: "Click", Icon: "pointer", Credit: true, Category: "engagement"},
	{Source: SourceReferral, Label: "Friend referred", Icon: "users", Credit: true, Category: "social"},
	{Source: SourceAdminGift, Label: "Gift from the team", Icon: "gift", Credit: true, Debit: true, Category: "admin"},
	{Source: SourceStreakFreezePurchase, Label: "Streak freeze purchased", Icon: "snowflake", Debit: true, Category: "habits"},
	{Source: SourceAchievement, Label: "Achievement unlocked", Icon: "trophy", Credit: true, Category: "progression"},
	{Source: SourceChallenge, Label: "Daily challenge", Icon: "target", Credit: true, Category: "progression"},
	{Source: SourceGame, Label: "Mini-game", Icon: "gamepad", Credit: true, Category: "engagement"},
}

var sourceIndex = func() map[Source]SourceInfo {
	m := make(map[Source]SourceInfo, len(sources))
	for _, s := range sources {
		m[s.Source] = s
	}
	return m
}()

func (s Source) String() string {
	switch s {
	case SourceHabitCompletion, SourceAdWatch, SourceClick, SourceReferral, SourceAdminGift,
		SourceStreakFreezePurchase, SourceAchievement, SourceChallenge, SourceGame:
		return string(s)
	default:
		return ""
	}
}

func (s Source) Valid() bool {
	return s.String() != ""
}

func (s Source) Info() SourceInfo {
	return sourceIndex[s]
}

// Sources lists every source with its metadata.
func Sources() []SourceInfo {
	out := make([]SourceInfo, len(sources))
	copy(out, sources)
	return out
}

func ParseSource(v string) (Source, error) {
	s := Source(v)
	if !s.Valid() {
		return "", errutil.ValidationFailed("unknown points source", nil,
			errutil.WithDetails(errutil.Detail{Field: "source", Message: v}))
	}
	return s, nil
}
