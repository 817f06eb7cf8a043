package errutil

// Stable machine-readable reasons. Clients branch on these, not on messages.
const (
	ReasonHabitAlreadyCompleted   = "HABIT_ALREADY_COMPLETED"
	ReasonHabitInactive           = "HABIT_INACTIVE"
	ReasonInsufficientBalance     = "INSUFFICIENT_BALANCE"
	ReasonFreezeCapReached        = "FREEZE_CAP_REACHED"
	ReasonNoFreezeAvailable       = "NO_FREEZE_AVAILABLE"
	ReasonAlreadyFrozenToday      = "ALREADY_FROZEN_TODAY"
	ReasonNothingToBridge         = "NOTHING_TO_BRIDGE"
	ReasonChallengeNotCompleted   = "CHALLENGE_NOT_COMPLETED"
	ReasonChallengeAlreadyClaimed = "CHALLENGE_ALREADY_CLAIMED"
	ReasonConcurrentUpdate        = "CONCURRENT_UPDATE"
	ReasonDuplicateReference      = "DUPLICATE_REFERENCE"
	ReasonExternalService         = "EXTERNAL_SERVICE"
)
