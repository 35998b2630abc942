package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_AgentOutputDropsOldestOnOverflow(t *testing.T) {
	b := New()
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < bufferSize+5; i++ {
		b.Publish(Event{Topic: TopicAgentOutput, Track: "t"})
	}

	// Overflow is allowed to drop agent:output events; just assert the bus
	// kept accepting publishes instead of blocking or panicking.
	require.Eventually(t, func() bool {
		select {
		case <-ch:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestBus_SessionTopicNeverDropped(t *testing.T) {
	b := New()
	defer b.Close()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	total := bufferSize + 5
	for i := 0; i < total; i++ {
		b.Publish(Event{Topic: TopicSessionStarted, SessionID: "s"})
	}

	received := 0
	deadline := time.After(2 * time.Second)
	for received < total {
		select {
		case <-ch:
			received++
		case <-deadline:
			t.Fatalf("only received %d/%d session events, some were dropped", received, total)
		}
	}
	assert.Equal(t, total, received)
}

func TestBus_UnsubscribeDuringBlockedDeliveryDoesNotPanic(t *testing.T) {
	b := New()

	ch := b.Subscribe()

	for i := 0; i < bufferSize+2; i++ {
		b.Publish(Event{Topic: TopicFeatureUpdated})
	}

	// Give the bus loop a moment to hand at least one overflow delivery off
	// to a blocking goroutine before the channel is closed out from under it.
	time.Sleep(50 * time.Millisecond)
	b.Unsubscribe(ch)
	b.Close()

	time.Sleep(50 * time.Millisecond)
}
