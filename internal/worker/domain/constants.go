package domain

import "time"

// Outcome codes returned by handlers
const (
	OutcomeSuccess = 0
)

// Retry policy defaults
const (
	DefaultMaxJobs           = 5
	DefaultReleaseDelay      = 60 * time.Second
	DefaultBuryAfterReserves = 3
	DefaultReserveTimeout    = 5 * time.Second
	DefaultPriority          = 1024
)

// Acknowledgment operations reported in AckError
const (
	OpDelete  = "delete"
	OpRelease = "release"
	OpBury    = "bury"
	OpStats   = "stats-job"
)
