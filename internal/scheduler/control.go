package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pipeline/internal/model"
	"pipeline/internal/queue"
)

const contextTailChars = 2000

// RetryFeature resets a feature to open and pushes it onto its track's
// retry queue, with a context string combining the operator's note and a
// tail of the previous attempt's output.
func (o *Orchestrator) RetryFeature(ctx context.Context, id int, note string) error {
	f, ok, err := o.features.GetFeature(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("scheduler: feature %d not found", id)
	}
	if err := o.features.UpdateFeatureStatus(ctx, id, model.FeatureOpen, "", "", ""); err != nil {
		return err
	}

	extraContext, previousSessionID := o.buildRetryContext(ctx, id, note)
	qm := o.queueManager()
	if qm == nil {
		return fmt.Errorf("scheduler: queue manager not initialized")
	}
	return qm.EnqueueRetry(id, qm.GetTrack(f), extraContext, previousSessionID)
}

// ResumeFeature behaves like RetryFeature but pushes onto the resume queue
// and installs a global resume request: every other track stalls at its
// resume barrier until this feature completes and the request is cleared.
func (o *Orchestrator) ResumeFeature(ctx context.Context, id int, note string) error {
	f, ok, err := o.features.GetFeature(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("scheduler: feature %d not found", id)
	}
	if err := o.features.UpdateFeatureStatus(ctx, id, model.FeatureOpen, "", "", ""); err != nil {
		return err
	}

	extraContext, previousSessionID := o.buildRetryContext(ctx, id, note)
	qm := o.queueManager()
	if qm == nil {
		return fmt.Errorf("scheduler: queue manager not initialized")
	}
	track := qm.GetTrack(f)

	o.mu.Lock()
	o.resumeReq = &model.ResumeRequest{FeatureID: id, Track: track, RequestedAt: time.Now()}
	o.mu.Unlock()
	o.publishStatus()

	return qm.EnqueueResume(id, track, extraContext, previousSessionID)
}

// clearResumeIfDone clears the active resume request once the targeted
// feature has finished processing on its track.
func (o *Orchestrator) clearResumeIfDone(track string, featureID int) {
	o.mu.Lock()
	if o.resumeReq != nil && o.resumeReq.Track == track && o.resumeReq.FeatureID == featureID {
		o.resumeReq = nil
	}
	o.mu.Unlock()
	o.publishStatus()
}

// activeResumeBlocks reports whether a resume request is active and
// targets a different track than the caller's.
func (o *Orchestrator) activeResumeBlocks(track string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resumeReq != nil && o.resumeReq.Track != track
}

// queueManager returns the queue manager pointer, which is only set once
// Start has run past the setup handshake.
func (o *Orchestrator) queueManager() *queue.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.queueMgr
}

// buildRetryContext combines the operator's note with a tail of the
// previous session's parsed messages, falling back to raw output, and
// returns that context string alongside the previous session's id (empty
// if none exists).
func (o *Orchestrator) buildRetryContext(ctx context.Context, featureID int, note string) (string, string) {
	prev, ok, err := o.sessions.GetLatestSessionForFeature(ctx, featureID)
	if err != nil || !ok {
		return note, ""
	}

	var tail string
	if len(prev.Messages) > 0 {
		var b strings.Builder
		for _, m := range prev.Messages {
			if m.Content == "" {
				continue
			}
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
		tail = lastChars(b.String(), contextTailChars)
	} else {
		tail = lastChars(prev.Output, contextTailChars)
	}

	if note == "" {
		return tail, prev.ID
	}
	return note + "\n\n---\nPrevious attempt tail:\n" + tail, prev.ID
}

func lastChars(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
