package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pipeline/internal/agentexec"
	"pipeline/internal/eventbus"
	"pipeline/internal/model"
	"pipeline/internal/store"
)

// runTrack is the per-track loop: while the orchestrator is running, pull
// the next queued item, drive it through implementation, failure
// analysis, auto-commit, and merge+verify, then clean up and publish
// status. It returns only when the orchestrator stops or the track's
// consecutive-critical-failure counter trips the circuit breaker.
func (o *Orchestrator) runTrack(ctx context.Context, track string) {
	logger := o.logger.With("track", track)
	for {
		if o.isStopping() {
			return
		}

		// 1. Resume barrier.
		blocked := false
		for o.activeResumeBlocks(track) {
			blocked = true
			if o.isStopping() {
				return
			}
			time.Sleep(o.cfg.ResumeBarrierPoll)
		}
		if blocked && o.isStopping() {
			return
		}

		// 2. Dequeue.
		item, ok := o.queueManager().Dequeue(track)
		if !ok {
			o.sleepInterruptible(o.cfg.DequeuePollDelay)
			continue
		}

		// 3. Load feature.
		feature, found, err := o.features.GetFeature(ctx, item.FeatureID)
		if err != nil || !found {
			logger.Warn("queued feature missing from store", "featureId", item.FeatureID, "err", err)
			continue
		}

		featureStart := time.Now()
		outcome, analysis := o.processFeature(ctx, track, feature, item, logger)

		if outcome == outcomeRateLimited {
			// Step 8's rate-limit branch: the feature stays open and is
			// re-queued ahead of ordinary work, then this track waits out
			// the delay before trying again.
			continue
		}

		// 11. Critical-failure tracking.
		tripped := o.recordCriticalOutcome(track, analysis)
		if tripped {
			logger.Error("consecutive critical failures, pausing track", "track", track)
			o.bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackCritical, Track: track})
			o.clearResumeIfDone(track, feature.ID)
			return
		}

		// 12. Pacing.
		if outcome == outcomeFailed && time.Since(featureStart) < o.cfg.FailurePacingThreshold {
			o.sleepInterruptible(o.cfg.FailurePacingDelay)
		}

		// 13. Bookkeeping.
		if err := o.git.CleanupWorktree(track); err != nil {
			logger.Warn("cleanup worktree failed", "err", err)
		}
		o.clearResumeIfDone(track, feature.ID)
		o.updateTrackStatus(track, func(ts *model.TrackRuntimeStatus) {
			ts.CurrentFeatureID = 0
			ts.CurrentSessionID = ""
			switch outcome {
			case outcomePassed:
				ts.Completed++
			case outcomeFailed:
				ts.Failed++
			}
		})

		if o.isStopping() {
			return
		}
	}
}

type featureOutcome int

const (
	outcomePassed featureOutcome = iota
	outcomeFailed
	outcomeRateLimited
)

// processFeature runs steps 4 through 10 of the per-track loop for one
// dequeued item and returns the feature's final outcome plus the failure
// analysis that produced it (zero value on a pass).
func (o *Orchestrator) processFeature(ctx context.Context, track string, feature model.Feature, item model.QueueItem, logger interface {
	Warn(string, ...any)
	Error(string, ...any)
	Info(string, ...any)
}) (featureOutcome, FailureAnalysis) {
	// 4. Set current feature.
	o.updateTrackStatus(track, func(ts *model.TrackRuntimeStatus) {
		ts.CurrentFeatureID = feature.ID
	})

	// 5. Prepare branch.
	branch, worktreePath, err := o.git.PrepareBranch(track, feature.ID, feature.Name, item.Retry || item.Resume)
	if err != nil {
		logger.Error("prepare branch failed", "featureId", feature.ID, "err", err)
		_ = o.features.UpdateFeatureStatus(ctx, feature.ID, model.FeatureFailed, err.Error(), model.FailureImplementation, "")
		return outcomeFailed, FailureAnalysis{Kind: model.FailureImplementation, Reason: err.Error()}
	}

	// 6. Create session record.
	sessionID := uuid.NewString()
	session := model.Session{
		ID:        sessionID,
		FeatureID: feature.ID,
		Track:     track,
		Branch:    branch,
		Status:    model.SessionRunning,
		StartedAt: time.Now(),
		ExtraContext: item.ExtraContext,
	}
	if err := o.sessions.CreateSession(ctx, session); err != nil {
		logger.Warn("create session record failed", "err", err)
	}
	o.updateTrackStatus(track, func(ts *model.TrackRuntimeStatus) {
		ts.CurrentSessionID = sessionID
	})
	o.bus.Publish(eventbus.Event{Topic: eventbus.TopicSessionStarted, Session: &session})

	// 7. Run implementation.
	vars := o.promptVars(feature)
	if item.ExtraContext != "" {
		vars.FeatureDescription = feature.Description + "\n\n" + item.ExtraContext
	}
	result := o.executor.ExecuteSession(ctx, worktreePath, o.cfg.ProjectRoot, vars, o.isStopping)
	o.finishSession(ctx, sessionID, result)

	combined := result.Output + "\n" + result.StderrTail + "\n" + result.Error

	if !result.Success {
		// 8. Failure analysis.
		analysis := classify(combined, o.cfg.CriticalPatterns)
		if analysis.Kind == failureKindRateLimit {
			qm := o.queueManager()
			if qm != nil {
				_ = qm.EnqueueResume(feature.ID, track, item.ExtraContext, sessionID)
			}
			o.sleepInterruptible(o.cfg.RateLimitDelay)
			_ = o.git.CleanupWorktree(track)
			return outcomeRateLimited, analysis
		}
		_ = o.features.UpdateFeatureStatus(ctx, feature.ID, model.FeatureFailed, analysis.Reason, analysis.Kind, "")
		o.bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &feature})
		return outcomeFailed, analysis
	}

	// 9. Auto-commit.
	commitMsg := fmt.Sprintf("feature %d: %s", feature.ID, feature.Name)
	if _, err := o.git.CommitAllIfDirty(worktreePath, commitMsg); err != nil {
		logger.Warn("auto-commit failed", "err", err)
	}
	status, err := o.git.GetBranchStatus(branch, worktreePath)
	if err != nil {
		logger.Warn("branch status check failed", "err", err)
	}
	if status.AheadCount == 0 {
		o.appendSystemMessage(ctx, sessionID, "implementation produced no commits on the feature branch")
		_ = o.features.UpdateFeatureStatus(ctx, feature.ID, model.FeatureFailed, "no commits produced", model.FailureImplementation, "")
		o.bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &feature})
		o.Stop()
		return outcomeFailed, FailureAnalysis{Kind: model.FailureImplementation, Reason: "no commits produced"}
	}

	// 10. Merge + verify.
	passed := o.verifyAndMerge(ctx, track, feature, branch, worktreePath)
	if passed {
		o.bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &feature})
		return outcomePassed, FailureAnalysis{}
	}
	o.bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &feature})
	return outcomeFailed, FailureAnalysis{Kind: model.FailureVerification}
}

// recordCriticalOutcome updates the track's consecutive-critical-failure
// counter and reports whether it has just tripped the 2-failure breaker.
func (o *Orchestrator) recordCriticalOutcome(track string, analysis FailureAnalysis) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if analysis.IsCritical {
		o.criticalCounters[track]++
	} else {
		o.criticalCounters[track] = 0
	}
	return o.criticalCounters[track] >= 2
}

func (o *Orchestrator) promptVars(f model.Feature) agentexec.PromptVars {
	return agentexec.PromptVars{
		FeatureID:          f.ID,
		FeatureName:        f.Name,
		FeatureDescription: f.Description,
		Steps:              f.Steps,
		ApplicationURL:     o.cfg.ApplicationURL,
		BaseBranch:         o.cfg.BaseBranch,
		InstructionsPath:   o.cfg.InstructionsPath,
	}
}

// startSyntheticSession creates and publishes the session-started event for
// a verification or fix agent run, which has no place in a track's normal
// queue but still needs a durable session record of its own, per the
// two/four-session counts the merge+verify subflow is specified to produce.
func (o *Orchestrator) startSyntheticSession(ctx context.Context, featureID int, track, branch string) string {
	sessionID := uuid.NewString()
	session := model.Session{
		ID:        sessionID,
		FeatureID: featureID,
		Track:     track,
		Branch:    branch,
		Status:    model.SessionRunning,
		StartedAt: time.Now(),
	}
	if err := o.sessions.CreateSession(ctx, session); err != nil {
		o.logger.Warn("create session record failed", "sessionId", sessionID, "err", err)
	}
	o.bus.Publish(eventbus.Event{Topic: eventbus.TopicSessionStarted, Session: &session})
	return sessionID
}

func (o *Orchestrator) finishSession(ctx context.Context, sessionID string, result agentexec.Result) {
	now := time.Now()
	status := model.SessionPassed
	if !result.Success {
		status = model.SessionFailed
	}
	var errPtr *string
	if result.Error != "" {
		errPtr = &result.Error
	}
	fields := store.SessionFields{
		Status:     &status,
		FinishedAt: &now,
		Output:     &result.Output,
		Messages:   &result.Messages,
		Error:      errPtr,
		AgentUsed:  &result.AgentUsed,
	}
	if err := o.sessions.UpdateSession(ctx, sessionID, fields); err != nil {
		o.logger.Warn("update session record failed", "sessionId", sessionID, "err", err)
	}
}

func (o *Orchestrator) appendSystemMessage(ctx context.Context, sessionID, content string) {
	existing, found, err := o.sessions.GetSession(ctx, sessionID)
	if err != nil || !found {
		return
	}
	msg := model.AgentMessage{Kind: model.MessageSystem, Timestamp: time.Now(), Agent: model.AgentSystemIdentity, Content: content}
	messages := append(existing.Messages, msg)
	_ = o.sessions.UpdateSession(ctx, sessionID, store.SessionFields{Messages: &messages})
}
