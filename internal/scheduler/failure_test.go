package scheduler

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipeline/internal/model"
)

func TestClassify_CriticalPatternWins(t *testing.T) {
	critical := []CriticalPattern{{Pattern: regexp.MustCompile(`ECONNREFUSED`), Label: "database unreachable"}}

	a := classify("dial tcp: ECONNREFUSED", critical)

	assert.Equal(t, model.FailureEnvironment, a.Kind)
	assert.True(t, a.IsCritical)
	assert.Equal(t, "database unreachable", a.Reason)
}

func TestClassify_TestOnlyBeforeRateLimit(t *testing.T) {
	a := classify("assertion failed: expected 1 to equal 2", nil)

	assert.Equal(t, model.FailureTestOnly, a.Kind)
	assert.False(t, a.IsCritical)
}

func TestClassify_RateLimit(t *testing.T) {
	a := classify("received HTTP 429 Too Many Requests from upstream", nil)

	assert.Equal(t, failureKindRateLimit, a.Kind)
}

func TestClassify_ImplementationFallback(t *testing.T) {
	a := classify("running build\nTypeError: undefined is not a function\ndone", nil)

	assert.Equal(t, model.FailureImplementation, a.Kind)
	assert.Contains(t, a.Reason, "TypeError")
	assert.False(t, a.IsCritical)
}

func TestClassify_UnknownWhenNothingMatches(t *testing.T) {
	a := classify("all good here, nothing to see", nil)

	assert.Equal(t, model.FailureUnknown, a.Kind)
	assert.Empty(t, a.Reason)
}

func TestClassify_TruncatesLongErrorLine(t *testing.T) {
	long := "error: " + string(make([]byte, 400))
	a := classify(long, nil)

	assert.LessOrEqual(t, len(a.Reason), 200)
}
