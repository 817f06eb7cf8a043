package rediskey

import "fmt"

// Leaderboard keys (global convention across services)
const (
	LeaderboardPrefix   = "leaderboard"
	LeaderboardLifetime = "leaderboard:lifetime"
	ChallengeLockPrefix = "challenge:lock"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLeaderboardKey returns "leaderboard:{board}"
func BuildLeaderboardKey(board string) string {
	return NamespaceKey(LeaderboardPrefix, board)
}

// BuildChallengeLockKey returns "challenge:lock:{day}"
func BuildChallengeLockKey(day string) string {
	return NamespaceKey(ChallengeLockPrefix, day)
}
