// Package eventbus fans out scheduler, session, and agent-output events to
// read-only observers without ever blocking the publisher. It is C8.
package eventbus

import (
	"pipeline/internal/model"
)

// Topic names the kind of event flowing through the bus.
type Topic string

const (
	TopicOrchestratorStatus Topic = "orchestrator:status"
	TopicSessionStarted     Topic = "session:started"
	TopicSessionFinished    Topic = "session:finished"
	TopicFeatureUpdated     Topic = "feature:updated"
	TopicAgentOutput        Topic = "agent:output"
	TopicTrackCritical      Topic = "track:critical_failure"
	TopicNewCategories      Topic = "tracks:new_categories"
)

// Event is the single envelope published on every topic. Only the field
// relevant to Topic is populated.
type Event struct {
	Topic         Topic
	Status        *StatusSnapshot
	Session       *model.Session
	SessionID     string
	Feature       *model.Feature
	AgentMessage  *model.AgentMessage
	Track         string
	NewCategories []string
}

// StatusSnapshot is the read-only orchestrator-wide status published on
// TopicOrchestratorStatus.
type StatusSnapshot struct {
	State  model.OrchestratorState
	Tracks []model.TrackRuntimeStatus
}

// Only agent:output is expected to ever hit the drop-oldest path below;
// status and session topics are low enough volume that a full subscriber
// buffer indicates a stalled consumer, not normal operation. They still
// must not be dropped, so overflow on those topics falls back to a
// blocking hand-off instead.
const bufferSize = 256

// Bus is the concrete, in-process Event Bus.
type Bus struct {
	subscribe   chan chan Event
	unsubscribe chan chan Event
	publish     chan Event
	done        chan struct{}
}

// New builds and starts a Bus. Its dispatch goroutine runs until Close is
// called.
func New() *Bus {
	b := &Bus{
		subscribe:   make(chan chan Event),
		unsubscribe: make(chan chan Event),
		publish:     make(chan Event, 1024),
		done:        make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	subs := make(map[chan Event]struct{})
	for {
		select {
		case ch := <-b.subscribe:
			subs[ch] = struct{}{}
		case ch := <-b.unsubscribe:
			delete(subs, ch)
			close(ch)
		case ev := <-b.publish:
			for ch := range subs {
				select {
				case ch <- ev:
				default:
					if ev.Topic == TopicAgentOutput {
						// Drop-oldest: make room by discarding one buffered
						// event, then retry once. Only the live-message
						// topic may lose events this way.
						select {
						case <-ch:
						default:
						}
						select {
						case ch <- ev:
						default:
						}
						continue
					}
					// Every other topic must not be dropped. Hand the
					// delivery off to its own goroutine so one stalled
					// subscriber blocks only its own channel, not dispatch
					// to the rest of the subscriber set.
					go deliverBlocking(ch, ev, b.done)
				}
			}
		case <-b.done:
			for ch := range subs {
				close(ch)
			}
			return
		}
	}
}

// deliverBlocking retries a send to ch until it succeeds or the bus closes,
// guaranteeing delivery of a non-agent-output event that arrived while ch's
// buffer was full instead of silently discarding it. The recover guards the
// narrow race where the owning subscriber unsubscribes (closing ch) after
// this goroutine was already committed to sending to it.
func deliverBlocking(ch chan Event, ev Event, done chan struct{}) {
	defer func() { recover() }()
	select {
	case ch <- ev:
	case <-done:
	}
}

// Subscribe returns a channel that receives every published Event from
// this point forward. The returned channel is closed when Unsubscribe or
// Close is called.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, bufferSize)
	select {
	case b.subscribe <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	select {
	case b.unsubscribe <- ch:
	case <-b.done:
	}
}

// Publish is always non-blocking from the caller's perspective: it hands
// the event to the bus goroutine's buffered channel, which is sized large
// enough that a full publish channel indicates a bug elsewhere rather than
// an expected condition.
func (b *Bus) Publish(ev Event) {
	select {
	case b.publish <- ev:
	case <-b.done:
	default:
	}
}

// Close stops the bus and closes every subscriber channel.
func (b *Bus) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}
