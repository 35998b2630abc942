// Package scheduler implements C7, the Orchestrator: the lifecycle state
// machine, the per-track loop, failure analysis, and the merge+verify
// subflow. Grounded on internal/runner/orchestrator.go's ticker-driven
// worker-pool loop, generalized from one shared task graph into N
// independent per-track goroutines, since the spec's tracks are
// independent lanes rather than a single dependency DAG.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pipeline/internal/agentexec"
	"pipeline/internal/eventbus"
	"pipeline/internal/filelock"
	"pipeline/internal/gitwork"
	"pipeline/internal/model"
	"pipeline/internal/queue"
	"pipeline/internal/store"
	"pipeline/internal/telemetry"
)

// Orchestrator drives every configured track's implementation/merge/verify
// cycle. Construction wires the six collaborators named in the design
// notes' "cyclic references" section as plain fields; there are no
// back-edges from any collaborator to the Orchestrator.
type Orchestrator struct {
	cfg       Config
	features  *store.FeatureStore
	sessions  store.SessionLog
	git       *gitwork.Manager
	executor  *agentexec.Executor
	bus       *eventbus.Bus
	logger    *slog.Logger
	metrics   *telemetry.Metrics

	verificationMutex *filelock.TrackMutex

	mu               sync.Mutex
	state            model.OrchestratorState
	tracks           []model.TrackDefinition
	tracksConfigured bool
	queueMgr         *queue.Manager
	trackStatus      map[string]*model.TrackRuntimeStatus
	criticalCounters map[string]int
	resumeReq        *model.ResumeRequest

	configureCh chan []model.TrackDefinition
	wg          sync.WaitGroup
}

// New builds an Orchestrator. initialTracks/tracksConfigured reflect
// whatever was persisted in the project configuration file; when
// tracksConfigured is false, Start blocks in the setup state until
// ConfigureTracks is called.
func New(
	cfg Config,
	features *store.FeatureStore,
	sessions store.SessionLog,
	git *gitwork.Manager,
	executor *agentexec.Executor,
	bus *eventbus.Bus,
	logger *slog.Logger,
	metrics *telemetry.Metrics,
	initialTracks []model.TrackDefinition,
	tracksConfigured bool,
) *Orchestrator {
	return &Orchestrator{
		cfg:               cfg,
		features:          features,
		sessions:          sessions,
		git:               git,
		executor:          executor,
		bus:               bus,
		logger:            logger.With("component", "scheduler"),
		metrics:           metrics,
		verificationMutex: filelock.NewTrackMutex(),
		state:             model.StateStopped,
		tracks:            initialTracks,
		tracksConfigured:  tracksConfigured,
		criticalCounters:  make(map[string]int),
		configureCh:       make(chan []model.TrackDefinition, 1),
	}
}

// Start transitions stopped -> (setup ->) running, launching one goroutine
// per track. It blocks only through the setup handshake, if one is needed;
// once tracks are known it launches the per-track loops and returns.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != model.StateStopped {
		o.mu.Unlock()
		return fmt.Errorf("scheduler: start called in state %s", o.state)
	}
	o.mu.Unlock()

	if err := o.git.Init(); err != nil {
		return fmt.Errorf("scheduler: git workspace init: %w", err)
	}

	features, err := o.features.LoadFeatures(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: load features: %w", err)
	}

	if !o.tracksConfigured {
		o.mu.Lock()
		o.state = model.StateSetup
		o.mu.Unlock()
		o.logger.Info("awaiting track configuration", "categories", distinctCategories(features))

		select {
		case tracks := <-o.configureCh:
			o.mu.Lock()
			o.tracks = tracks
			o.tracksConfigured = true
			o.mu.Unlock()
		case <-ctx.Done():
			o.mu.Lock()
			o.state = model.StateStopped
			o.mu.Unlock()
			return ctx.Err()
		}
	} else {
		if uncovered := queue.UncoveredCategories(o.tracks, features); len(uncovered) > 0 {
			o.logger.Warn("categories not covered by any track, routing to default", "categories", uncovered)
			o.bus.Publish(eventbus.Event{Topic: eventbus.TopicNewCategories, NewCategories: uncovered})
		}
	}

	o.mu.Lock()
	o.queueMgr = queue.NewManager(o.tracks)
	o.queueMgr.InitializeQueues(features)
	o.trackStatus = make(map[string]*model.TrackRuntimeStatus, len(o.tracks))
	for _, t := range o.tracks {
		o.trackStatus[t.Name] = &model.TrackRuntimeStatus{Track: t.Name}
	}
	o.state = model.StateRunning
	tracks := append([]model.TrackDefinition(nil), o.tracks...)
	o.mu.Unlock()

	o.publishStatus()

	for _, t := range tracks {
		o.wg.Add(1)
		go func(track string) {
			defer o.wg.Done()
			o.runTrack(ctx, track)
		}(t.Name)
	}
	return nil
}

// Stop sets the stopping flag; each track loop observes it between
// features and exits on its own. A background goroutine flips the state
// back to stopped once every track loop has returned.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != model.StateRunning && o.state != model.StateSetup {
		o.mu.Unlock()
		return
	}
	o.state = model.StateStopping
	o.mu.Unlock()
	o.publishStatus()

	go func() {
		o.wg.Wait()
		o.mu.Lock()
		o.state = model.StateStopped
		o.mu.Unlock()
		o.publishStatus()
	}()
}

// isStopping is the stop predicate passed down to the Agent Executor and
// polled at every blocking point in the per-track loop.
func (o *Orchestrator) isStopping() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == model.StateStopping || o.state == model.StateStopped
}

// ConfigureTracks accepts 1-5 track definitions with exactly one default
// and unique non-empty names, and is rejected outside the setup state.
func (o *Orchestrator) ConfigureTracks(tracks []model.TrackDefinition) error {
	o.mu.Lock()
	if o.state != model.StateSetup {
		o.mu.Unlock()
		return fmt.Errorf("scheduler: configureTracks called outside setup state (state=%s)", o.state)
	}
	o.mu.Unlock()

	if err := validateTracks(tracks); err != nil {
		return err
	}

	select {
	case o.configureCh <- tracks:
		return nil
	default:
		return fmt.Errorf("scheduler: configuration already pending")
	}
}

func validateTracks(tracks []model.TrackDefinition) error {
	if len(tracks) < 1 || len(tracks) > 5 {
		return fmt.Errorf("scheduler: expected 1-5 tracks, got %d", len(tracks))
	}
	defaults := 0
	seen := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		if t.Name == "" {
			return fmt.Errorf("scheduler: track name must not be empty")
		}
		if seen[t.Name] {
			return fmt.Errorf("scheduler: duplicate track name %q", t.Name)
		}
		seen[t.Name] = true
		if t.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("scheduler: exactly one track must be marked default, got %d", defaults)
	}
	return nil
}

// GetStatus returns a snapshot of the orchestrator's and every track's
// current state, safe to publish or return to a collaborator.
func (o *Orchestrator) GetStatus() eventbus.StatusSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	tracks := make([]model.TrackRuntimeStatus, 0, len(o.trackStatus))
	for _, t := range o.trackStatus {
		ts := *t
		if o.queueMgr != nil {
			main, retry, resume := o.queueMgr.QueueStatus(ts.Track)
			ts.Queued = main + retry + resume
		}
		tracks = append(tracks, ts)
	}
	return eventbus.StatusSnapshot{State: o.state, Tracks: tracks}
}

func (o *Orchestrator) publishStatus() {
	snap := o.GetStatus()
	o.bus.Publish(eventbus.Event{Topic: eventbus.TopicOrchestratorStatus, Status: &snap})
}

func (o *Orchestrator) updateTrackStatus(track string, fn func(*model.TrackRuntimeStatus)) {
	o.mu.Lock()
	ts, ok := o.trackStatus[track]
	if ok {
		fn(ts)
	}
	o.mu.Unlock()
	o.publishStatus()
}

func distinctCategories(features []model.Feature) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range features {
		if f.Category == "" || seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		out = append(out, f.Category)
	}
	return out
}

// sleepInterruptible sleeps up to d, waking early if stop() becomes true,
// polling at the orchestrator's resume-barrier cadence.
func (o *Orchestrator) sleepInterruptible(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if o.isStopping() {
			return
		}
		remaining := time.Until(deadline)
		step := o.cfg.ResumeBarrierPoll
		if remaining < step {
			step = remaining
		}
		if step > 0 {
			time.Sleep(step)
		}
	}
}
