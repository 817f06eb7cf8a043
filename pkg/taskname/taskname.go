package taskname

const (
	// Notification tasks
	NotificationSend = "notification:send"

	// Challenge tasks
	ChallengeMaterialize = "challenge:materialize"

	// Leaderboard tasks
	LeaderboardRebuild = "leaderboard:rebuild"
)
