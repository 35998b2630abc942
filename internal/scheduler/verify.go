package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"pipeline/internal/eventbus"
	"pipeline/internal/model"
)

var (
	verdictFailPattern = regexp.MustCompile(`(?i)VERDICT:\s*FAIL`)
	stepFailPattern    = regexp.MustCompile(`(?i)STEP\s+\d+:\s*FAIL`)
)

const verificationTailChars = 3000

// verifyAndMerge runs the merge+verify subflow for one feature that just
// produced commits on its branch: refresh the branch against base, merge
// and push into base, then (unless verification is disabled) spawn a
// verification agent and loop a fix-and-reverify cycle until it passes or
// attempts are exhausted. The whole window runs under the verification
// mutex, since merging into base and pushing must never interleave across
// tracks.
func (o *Orchestrator) verifyAndMerge(ctx context.Context, track string, feature model.Feature, branch, worktreePath string) bool {
	if err := o.verificationMutex.Lock(ctx); err != nil {
		return false
	}
	defer o.verificationMutex.Unlock()

	attempts := 0
	for {
		if err := o.git.UpdateFeatureBranch(worktreePath); err != nil {
			o.logger.Warn("refresh feature branch failed, proceeding to merge anyway", "featureId", feature.ID, "err", err)
		}

		preMergeCommit, err := o.git.MergeLocally(branch)
		if err != nil {
			o.markVerificationFailed(ctx, feature, "merge into base: "+err.Error())
			o.Stop()
			return false
		}

		if err := o.git.PushBaseBranch(); err != nil {
			_ = o.git.RevertMerge(preMergeCommit)
			o.markVerificationFailed(ctx, feature, "push base branch: "+err.Error())
			o.Stop()
			return false
		}

		if o.cfg.VerificationDisabled {
			_ = o.features.UpdateFeatureStatus(ctx, feature.ID, model.FeaturePassed, "", "", "verification disabled")
			return true
		}

		_ = o.features.UpdateFeatureStatus(ctx, feature.ID, model.FeatureVerifying, "", "", "")
		o.bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &feature})

		o.sleepInterruptible(o.cfg.PropagationDelay)
		if o.isStopping() {
			return false
		}

		vars := o.promptVars(feature)
		vars.ApplicationURL = o.cfg.ApplicationURL
		verifySessionID := o.startSyntheticSession(ctx, feature.ID, model.TrackVerification, branch)
		result := o.executor.ExecuteVerification(ctx, o.cfg.ProjectRoot, vars, o.isStopping)
		o.finishSession(ctx, verifySessionID, result)

		combined := result.Output + "\n" + result.StderrTail + "\n" + result.Error
		if verificationPassed(result.Success, combined) {
			_ = o.features.UpdateFeatureStatus(ctx, feature.ID, model.FeaturePassed, "", "", verificationProgress(combined))
			return true
		}

		attempts++
		reason := verificationFailureReason(combined)
		if attempts >= o.cfg.VerificationMaxAttempts || o.isStopping() {
			o.markVerificationFailed(ctx, feature, reason)
			return false
		}

		fixVars := vars
		fixVars.VerificationTail = lastChars(combined, verificationTailChars)
		fixSessionID := o.startSyntheticSession(ctx, feature.ID, model.TrackFix, branch)
		fixResult := o.executor.ExecuteFix(ctx, worktreePath, o.cfg.ProjectRoot, fixVars, o.isStopping)
		o.finishSession(ctx, fixSessionID, fixResult)

		commitMsg := fmt.Sprintf("fix attempt %d for feature %d", attempts, feature.ID)
		if _, err := o.git.CommitAllIfDirty(worktreePath, commitMsg); err != nil {
			o.markVerificationFailed(ctx, feature, "auto-commit after fix: "+err.Error())
			o.Stop()
			return false
		}
		// Loop back to refresh the feature branch regardless of whether the
		// fix agent itself reported success.
	}
}

// verificationPassed scans the verification agent's combined output for an
// explicit failure signature even when the process exited zero: a
// "VERDICT: FAIL" line, or any "STEP N: FAIL" line, overrides a clean exit.
func verificationPassed(exitSuccess bool, combined string) bool {
	if verdictFailPattern.MatchString(combined) || stepFailPattern.MatchString(combined) {
		return false
	}
	return exitSuccess
}

func verificationFailureReason(combined string) string {
	lines := strings.Split(combined, "\n")
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if stepFailPattern.MatchString(l) || verdictFailPattern.MatchString(l) {
			return truncate(l, 200)
		}
	}
	if line := lastErrorLine(combined); line != "" {
		return truncate(line, 200)
	}
	return "verification failed"
}

// verificationProgress extracts a short human-readable summary from a
// passing verification run's STEP lines, falling back to a generic note.
func verificationProgress(combined string) string {
	var passed []string
	for _, l := range strings.Split(combined, "\n") {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(strings.ToUpper(l), "STEP") {
			passed = append(passed, l)
		}
	}
	if len(passed) == 0 {
		return "verification passed"
	}
	return strings.Join(passed, "; ")
}

func (o *Orchestrator) markVerificationFailed(ctx context.Context, feature model.Feature, reason string) {
	_ = o.features.UpdateFeatureStatus(ctx, feature.ID, model.FeatureFailed, reason, model.FailureVerification, "")
	o.bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &feature})
}
