package scheduler

import "time"

// Config is the orchestrator's tunable behavior, assembled from the
// project configuration file.
type Config struct {
	ProjectRoot      string
	ApplicationURL   string
	BaseBranch       string
	InstructionsPath string

	CriticalPatterns []CriticalPattern

	VerificationMaxAttempts int
	PropagationDelay        time.Duration
	VerificationDisabled    bool

	RateLimitDelay   time.Duration
	DequeuePollDelay time.Duration
	ResumeBarrierPoll time.Duration
	FailurePacingThreshold time.Duration
	FailurePacingDelay     time.Duration
}

// DefaultConfig returns the built-in defaults the design notes assume
// absent project configuration; callers override only the fields a
// project's configuration file actually sets.
func DefaultConfig() Config {
	return Config{
		BaseBranch:              "main",
		VerificationMaxAttempts: 3,
		PropagationDelay:        3 * time.Second,
		RateLimitDelay:          60 * time.Second,
		DequeuePollDelay:        2 * time.Second,
		ResumeBarrierPoll:       500 * time.Millisecond,
		FailurePacingThreshold:  10 * time.Second,
		FailurePacingDelay:      5 * time.Second,
	}
}
