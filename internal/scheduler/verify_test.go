package scheduler

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeline/internal/agentexec"
	"pipeline/internal/eventbus"
	"pipeline/internal/model"
)

func newTestOrchestratorForSessions(sessions *fakeSessionLog) *Orchestrator {
	return &Orchestrator{
		sessions: sessions,
		bus:      eventbus.New(),
		logger:   slog.Default(),
	}
}

func TestStartSyntheticSession_RecordsVerificationTrack(t *testing.T) {
	sessions := newFakeSessionLog()
	o := newTestOrchestratorForSessions(sessions)
	defer o.bus.Close()

	id := o.startSyntheticSession(context.Background(), 42, model.TrackVerification, "feature-42")

	s, found, err := sessions.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.TrackVerification, s.Track)
	assert.Equal(t, 42, s.FeatureID)
	assert.Equal(t, model.SessionRunning, s.Status)
}

func TestStartSyntheticSession_RecordsFixTrack(t *testing.T) {
	sessions := newFakeSessionLog()
	o := newTestOrchestratorForSessions(sessions)
	defer o.bus.Close()

	id := o.startSyntheticSession(context.Background(), 7, model.TrackFix, "feature-7")

	s, found, err := sessions.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.TrackFix, s.Track)
}

func TestFinishSession_MarksFailedSessionFromUnsuccessfulResult(t *testing.T) {
	sessions := newFakeSessionLog()
	o := newTestOrchestratorForSessions(sessions)
	defer o.bus.Close()

	id := o.startSyntheticSession(context.Background(), 1, model.TrackVerification, "feature-1")
	o.finishSession(context.Background(), id, agentexec.Result{Success: false, Error: "STEP 1: FAIL"})

	s, found, err := sessions.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.SessionFailed, s.Status)
	assert.Equal(t, "STEP 1: FAIL", s.Error)
}

func TestFinishSession_MarksPassedSessionFromSuccessfulResult(t *testing.T) {
	sessions := newFakeSessionLog()
	o := newTestOrchestratorForSessions(sessions)
	defer o.bus.Close()

	id := o.startSyntheticSession(context.Background(), 1, model.TrackFix, "feature-1")
	o.finishSession(context.Background(), id, agentexec.Result{Success: true})

	s, found, err := sessions.GetSession(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model.SessionPassed, s.Status)
}

func TestVerificationPassed_ExitZeroNoFailLines(t *testing.T) {
	assert.True(t, verificationPassed(true, "STEP 1: PASS\nSTEP 2: PASS\nVERDICT: PASS"))
}

func TestVerificationPassed_ExitNonZero(t *testing.T) {
	assert.False(t, verificationPassed(false, "STEP 1: PASS"))
}

func TestVerificationPassed_StepFailOverridesCleanExit(t *testing.T) {
	assert.False(t, verificationPassed(true, "STEP 1: PASS\nSTEP 2: FAIL\nVERDICT: PASS"))
}

func TestVerificationPassed_VerdictFailOverridesCleanExit(t *testing.T) {
	assert.False(t, verificationPassed(true, "STEP 1: PASS\nVERDICT: FAIL"))
}

func TestVerificationFailureReason_PicksFailingStepLine(t *testing.T) {
	reason := verificationFailureReason("STEP 1: PASS\nSTEP 2: FAIL - login redirect missing\nVERDICT: FAIL")
	assert.Contains(t, reason, "STEP 2: FAIL")
}

func TestVerificationFailureReason_FallsBackToErrorLine(t *testing.T) {
	reason := verificationFailureReason("running checks\nerror: could not reach application url\ndone")
	assert.Contains(t, reason, "error")
}

func TestVerificationFailureReason_DefaultWhenNothingMatches(t *testing.T) {
	assert.Equal(t, "verification failed", verificationFailureReason("all quiet"))
}

func TestVerificationProgress_JoinsStepLines(t *testing.T) {
	progress := verificationProgress("STEP 1: PASS\nsome other line\nSTEP 2: PASS")
	assert.Contains(t, progress, "STEP 1: PASS")
	assert.Contains(t, progress, "STEP 2: PASS")
}

func TestVerificationProgress_DefaultWhenNoStepLines(t *testing.T) {
	assert.Equal(t, "verification passed", verificationProgress("nothing relevant here"))
}
