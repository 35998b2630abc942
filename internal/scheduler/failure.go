package scheduler

import (
	"regexp"
	"strings"

	"pipeline/internal/model"
)

// CriticalPattern pairs a configured critical-infrastructure regex with the
// label recorded against a feature when it matches.
type CriticalPattern struct {
	Pattern *regexp.Regexp
	Label   string
}

var testOnlyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)test(s)? failed`),
	regexp.MustCompile(`(?i)assertion failed`),
	regexp.MustCompile(`(?i)expected .* to equal .*`),
	regexp.MustCompile(`(?i)verification couldn't complete`),
	regexp.MustCompile(`(?i)verification could not complete`),
}

var failureRateLimitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)rate[ -]?limit`),
	regexp.MustCompile(`(?i)quota exceeded`),
	regexp.MustCompile(`(?i)usage (limit|exceeded)`),
	regexp.MustCompile(`\b429\b`),
	regexp.MustCompile(`(?i)too many requests`),
	regexp.MustCompile(`(?i)temporarily unavailable`),
}

var errorLinePattern = regexp.MustCompile(`(?i)(error|fail|fatal|exception|cannot|unable)`)

// FailureAnalysis is the four-step classification of one failed
// implementation or verification attempt.
type FailureAnalysis struct {
	Kind       model.FailureKind
	Reason     string
	IsCritical bool
}

// classify runs the four-step failure-analysis order: configured critical
// patterns first, then test-only phrasing, then rate-limit phrasing,
// otherwise the last error-like line truncated to 200 characters.
func classify(combined string, criticalPatterns []CriticalPattern) FailureAnalysis {
	for _, cp := range criticalPatterns {
		if cp.Pattern.MatchString(combined) {
			return FailureAnalysis{Kind: model.FailureEnvironment, Reason: cp.Label, IsCritical: true}
		}
	}
	for _, p := range testOnlyPatterns {
		if p.MatchString(combined) {
			return FailureAnalysis{Kind: model.FailureTestOnly, Reason: "test-only failure", IsCritical: false}
		}
	}
	for _, p := range failureRateLimitPatterns {
		if p.MatchString(combined) {
			return FailureAnalysis{Kind: failureKindRateLimit, Reason: "rate limited", IsCritical: false}
		}
	}
	if line := lastErrorLine(combined); line != "" {
		return FailureAnalysis{Kind: model.FailureImplementation, Reason: truncate(line, 200), IsCritical: false}
	}
	return FailureAnalysis{Kind: model.FailureUnknown, Reason: "", IsCritical: false}
}

// lastErrorLine returns the last line in combined that looks like an error,
// scanning from the bottom since the most recent failure is usually the
// most relevant one.
func lastErrorLine(combined string) string {
	lines := strings.Split(combined, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && errorLinePattern.MatchString(line) {
			return line
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// failureKindRateLimit is a scheduler-local sentinel kind: the spec keeps
// agent-level rate-limit switching (handled entirely inside the executor's
// fallback loop) distinct from this coarser classification, which can
// still surface "rate_limit" when the executor exhausts its own fallback
// handling and returns a failure whose text nonetheless reads as a rate
// limit. Declared as a typed constant here rather than added to
// model.FailureKind since it never persists to the feature store: a
// rate-limited outcome leaves the feature status untouched (see
// track.go's handling of step 8).
const failureKindRateLimit model.FailureKind = "rate_limit"
