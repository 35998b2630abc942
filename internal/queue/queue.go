// Package queue implements the per-track three-tier priority queue (C5):
// resume, retry, and main, each FIFO, with category-to-track routing. No
// teacher module models this directly — internal/runner/taskgraph.go is a
// dependency DAG with topological sort, not a priority queue, so this is
// hand-built in the same unadorned style as the teacher's worker pool.
package queue

import (
	"container/list"
	"fmt"
	"sort"
	"sync"

	"pipeline/internal/model"
)

type trackQueues struct {
	resume *list.List
	retry  *list.List
	main   *list.List
}

func newTrackQueues() *trackQueues {
	return &trackQueues{resume: list.New(), retry: list.New(), main: list.New()}
}

// Manager owns every track's three queues and the routing table used to
// assign a feature's category to a track.
type Manager struct {
	mu     sync.Mutex
	tracks []model.TrackDefinition
	queues map[string]*trackQueues
}

// NewManager builds a Manager for the given track definitions. Exactly one
// definition must have Default set; this is validated by the scheduler's
// setup handshake, not here.
func NewManager(tracks []model.TrackDefinition) *Manager {
	m := &Manager{
		tracks: tracks,
		queues: make(map[string]*trackQueues, len(tracks)),
	}
	for _, t := range tracks {
		m.queues[t.Name] = newTrackQueues()
	}
	return m
}

// InitializeQueues clears every track's queues and inserts every feature
// with status open, ascending by id, into the main queue of its routed
// track.
func (m *Manager) InitializeQueues(features []model.Feature) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, tq := range m.queues {
		tq.resume.Init()
		tq.retry.Init()
		tq.main.Init()
	}

	open := make([]model.Feature, 0, len(features))
	for _, f := range features {
		if f.Status == model.FeatureOpen {
			open = append(open, f)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })

	for _, f := range open {
		track := m.getTrackLocked(f)
		m.queues[track].main.PushBack(model.QueueItem{FeatureID: f.ID})
	}
}

// Dequeue returns the next item for a track, preferring resume, then
// retry, then main, FIFO within each tier.
func (m *Manager) Dequeue(track string) (model.QueueItem, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tq, ok := m.queues[track]
	if !ok {
		return model.QueueItem{}, false
	}
	for _, q := range []*list.List{tq.resume, tq.retry, tq.main} {
		if el := q.Front(); el != nil {
			q.Remove(el)
			return el.Value.(model.QueueItem), true
		}
	}
	return model.QueueItem{}, false
}

// EnqueueRetry pushes a retry item onto the track's retry queue.
func (m *Manager) EnqueueRetry(featureID int, track, extraContext, previousSessionID string) error {
	return m.enqueue(track, model.QueueItem{
		FeatureID:         featureID,
		Retry:             true,
		ExtraContext:      extraContext,
		PreviousSessionID: previousSessionID,
	}, func(tq *trackQueues) *list.List { return tq.retry })
}

// EnqueueResume pushes a resume item onto the track's resume queue.
func (m *Manager) EnqueueResume(featureID int, track, extraContext, previousSessionID string) error {
	return m.enqueue(track, model.QueueItem{
		FeatureID:         featureID,
		Resume:            true,
		ExtraContext:      extraContext,
		PreviousSessionID: previousSessionID,
	}, func(tq *trackQueues) *list.List { return tq.resume })
}

func (m *Manager) enqueue(track string, item model.QueueItem, pick func(*trackQueues) *list.List) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tq, ok := m.queues[track]
	if !ok {
		return fmt.Errorf("queue: unknown track %q", track)
	}
	pick(tq).PushBack(item)
	return nil
}

// GetTrack routes a feature to a track: the first track whose category
// list contains the feature's category, otherwise the default track,
// otherwise the first configured track.
func (m *Manager) GetTrack(f model.Feature) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTrackLocked(f)
}

func (m *Manager) getTrackLocked(f model.Feature) string {
	for _, t := range m.tracks {
		for _, c := range t.Categories {
			if c == f.Category {
				return t.Name
			}
		}
	}
	for _, t := range m.tracks {
		if t.Default {
			return t.Name
		}
	}
	if len(m.tracks) > 0 {
		return m.tracks[0].Name
	}
	return ""
}

// QueueStatus reports (mainCount, retryCount, resumeCount) for a track.
func (m *Manager) QueueStatus(track string) (main, retry, resume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tq, ok := m.queues[track]
	if !ok {
		return 0, 0, 0
	}
	return tq.main.Len(), tq.retry.Len(), tq.resume.Len()
}

// UncoveredCategories returns the set of feature categories present in
// features that no track's category list names, in first-seen order.
func UncoveredCategories(tracks []model.TrackDefinition, features []model.Feature) []string {
	covered := make(map[string]bool)
	for _, t := range tracks {
		for _, c := range t.Categories {
			covered[c] = true
		}
	}
	seen := make(map[string]bool)
	var out []string
	for _, f := range features {
		if f.Category == "" || covered[f.Category] || seen[f.Category] {
			continue
		}
		seen[f.Category] = true
		out = append(out, f.Category)
	}
	return out
}
