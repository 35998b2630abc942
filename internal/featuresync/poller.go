// Package featuresync periodically pulls work items from external
// trackers and upserts them into the Feature Store's file, upstream of
// the orchestrator's own read path. Grounded on the teacher's
// internal/jira and internal/polling packages, narrowed from "drive a
// ticket through the whole recac lifecycle" to "populate the feature
// file, then get out of the way" — everything past that point is the
// Feature Store and the scheduler's job.
package featuresync

import (
	"context"
	"log/slog"
	"time"

	"pipeline/internal/model"
)

// Source fetches candidate features from one external system. Source
// implementations never touch the feature file directly; Poller owns all
// writes through the upsert method so every source goes through the same
// file-lock discipline.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.Feature, error)
}

// Upserter is the slice of the Feature Store a Poller needs.
type Upserter interface {
	UpsertExternalFeatures(ctx context.Context, candidates []model.Feature) (int, error)
}

// Poller runs one Source on its own ticker, mirroring the teacher's
// Poller.Start loop shape (one ticker, select against ctx.Done).
type Poller struct {
	source   Source
	store    Upserter
	interval time.Duration
	logger   *slog.Logger
}

func NewPoller(source Source, store Upserter, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{source: source, store: store, interval: interval, logger: logger.With("source", source.Name())}
}

// Start blocks until ctx is cancelled, polling the source on the
// configured interval. Fetch and upsert failures are logged and do not
// stop the loop — a transient tracker outage should never take down the
// orchestrator.
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("feature sync poller starting", "interval", p.interval)
	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("feature sync poller stopping")
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	candidates, err := p.source.Fetch(ctx)
	if err != nil {
		p.logger.Warn("fetch failed", "err", err)
		return
	}
	if len(candidates) == 0 {
		return
	}
	added, err := p.store.UpsertExternalFeatures(ctx, candidates)
	if err != nil {
		p.logger.Warn("upsert failed", "err", err)
		return
	}
	if added > 0 {
		p.logger.Info("synced features", "fetched", len(candidates), "added", added)
	}
}

// Group runs a set of Pollers concurrently, all cancelled together.
type Group struct {
	pollers []*Poller
}

func NewGroup(pollers ...*Poller) *Group {
	return &Group{pollers: pollers}
}

func (g *Group) Start(ctx context.Context) {
	for _, p := range g.pollers {
		go p.Start(ctx)
	}
}
