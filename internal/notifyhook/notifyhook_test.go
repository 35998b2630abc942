package notifyhook

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipeline/internal/eventbus"
	"pipeline/internal/model"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (r *recordingSender) Send(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, message)
	return nil
}

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubscriber_ForwardsCriticalFailure(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	sender := &recordingSender{}
	sub := NewSubscriber(bus, EventSelector{OnCriticalFailure: true}, testLogger(), sender)

	ctx, cancel := context.WithCancel(context.Background())
	go sub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackCritical, Track: "core"})
	time.Sleep(30 * time.Millisecond)
	cancel()

	msgs := sender.messages()
	if assert.Len(t, msgs, 1) {
		assert.Contains(t, msgs[0], "core")
	}
}

func TestSubscriber_IgnoresDisabledEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	sender := &recordingSender{}
	sub := NewSubscriber(bus, EventSelector{}, testLogger(), sender)

	ctx, cancel := context.WithCancel(context.Background())
	go sub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	bus.Publish(eventbus.Event{Topic: eventbus.TopicTrackCritical, Track: "core"})
	time.Sleep(30 * time.Millisecond)
	cancel()

	assert.Empty(t, sender.messages())
}

func TestSubscriber_FeaturePassedAndFailed(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()

	sender := &recordingSender{}
	sub := NewSubscriber(bus, EventSelector{OnFeaturePassed: true, OnFeatureFailed: true}, testLogger(), sender)

	ctx, cancel := context.WithCancel(context.Background())
	go sub.Run(ctx)
	time.Sleep(10 * time.Millisecond)

	passed := model.Feature{ID: 1, Name: "widget", Status: model.FeaturePassed}
	failed := model.Feature{ID: 2, Name: "gadget", Status: model.FeatureFailed, FailureReason: "boom"}
	bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &passed})
	bus.Publish(eventbus.Event{Topic: eventbus.TopicFeatureUpdated, Feature: &failed})
	time.Sleep(30 * time.Millisecond)
	cancel()

	msgs := sender.messages()
	if assert.Len(t, msgs, 2) {
		assert.Contains(t, msgs[0], "widget")
		assert.Contains(t, msgs[1], "boom")
	}
}
