// Package notifyhook is an optional Event Bus subscriber that posts to
// Slack and/or Discord on critical track failures and terminal feature
// outcomes. It is adapted from the teacher's internal/notify.Manager,
// narrowed from a two-way Socket Mode bot (slash commands, reactions,
// thread replies) to a passive, outbound-only observer: nothing here can
// influence scheduling, and a delivery failure is only ever logged.
package notifyhook

import (
	"context"
	"fmt"
	"log/slog"

	"pipeline/internal/eventbus"
	"pipeline/internal/model"
)

// Sender posts one message to a provider and returns an error on failure.
// Both SlackSender and DiscordSender implement this so Subscriber stays
// provider-agnostic.
type Sender interface {
	Send(ctx context.Context, message string) error
}

// EventSelector decides which Topics are worth a notification and how
// to render one, mirroring the teacher's per-event `on_start`/`on_pass`/
// `on_fail`/`on_critical_failure` flags.
type EventSelector struct {
	OnCriticalFailure bool
	OnFeaturePassed   bool
	OnFeatureFailed   bool
}

// Subscriber owns a Bus subscription and fans every matching event out to
// every configured Sender, entirely independent of the scheduler's own
// goroutines.
type Subscriber struct {
	bus      *eventbus.Bus
	senders  []Sender
	selector EventSelector
	logger   *slog.Logger
}

func NewSubscriber(bus *eventbus.Bus, selector EventSelector, logger *slog.Logger, senders ...Sender) *Subscriber {
	return &Subscriber{bus: bus, senders: senders, selector: selector, logger: logger}
}

// Run blocks until ctx is cancelled, forwarding matching events to every
// sender. Each send runs in its own goroutine so a slow or down provider
// never backs up the bus subscription's channel.
func (s *Subscriber) Run(ctx context.Context) {
	if len(s.senders) == 0 {
		return
	}
	ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if msg, ok := s.render(ev); ok {
				s.dispatch(ctx, msg)
			}
		}
	}
}

func (s *Subscriber) render(ev eventbus.Event) (string, bool) {
	switch ev.Topic {
	case eventbus.TopicTrackCritical:
		if !s.selector.OnCriticalFailure {
			return "", false
		}
		return fmt.Sprintf(":rotating_light: track %q paused after consecutive critical failures", ev.Track), true
	case eventbus.TopicFeatureUpdated:
		if ev.Feature == nil {
			return "", false
		}
		switch ev.Feature.Status {
		case model.FeaturePassed:
			if !s.selector.OnFeaturePassed {
				return "", false
			}
			return fmt.Sprintf(":white_check_mark: feature %d (%s) passed verification", ev.Feature.ID, ev.Feature.Name), true
		case model.FeatureFailed:
			if !s.selector.OnFeatureFailed {
				return "", false
			}
			return fmt.Sprintf(":x: feature %d (%s) failed: %s", ev.Feature.ID, ev.Feature.Name, ev.Feature.FailureReason), true
		}
	}
	return "", false
}

func (s *Subscriber) dispatch(ctx context.Context, message string) {
	for _, sender := range s.senders {
		sender := sender
		go func() {
			if err := sender.Send(ctx, message); err != nil && s.logger != nil {
				s.logger.Warn("notification delivery failed", "err", err)
			}
		}()
	}
}
