package execbackend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noStop() bool { return false }

func TestSubprocessBackend_Success(t *testing.T) {
	b := NewSubprocessBackend()
	var lines []string

	tail, err := b.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo hello; echo world"},
	}, func(line string) { lines = append(lines, line) }, noStop)

	require.NoError(t, err)
	assert.Empty(t, tail)
	assert.Equal(t, []string{"hello", "world"}, lines)
}

func TestSubprocessBackend_CapturesStderrTail(t *testing.T) {
	b := NewSubprocessBackend()

	tail, err := b.Run(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo boom >&2; exit 1"},
	}, func(string) {}, noStop)

	require.Error(t, err)
	assert.Equal(t, "boom", tail)
}

func TestSubprocessBackend_StopKillsProcess(t *testing.T) {
	b := NewSubprocessBackend()
	stopped := false
	stop := func() bool { return stopped }

	done := make(chan error, 1)
	go func() {
		_, err := b.Run(context.Background(), Spec{
			Command: "sh",
			Args:    []string{"-c", "sleep 30"},
		}, func(string) {}, stop)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	stopped = true

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("process was not killed after stop() returned true")
	}
}

func TestSubprocessBackend_ContextCancel(t *testing.T) {
	b := NewSubprocessBackend()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := b.Run(ctx, Spec{
			Command: "sh",
			Args:    []string{"-c", "sleep 30"},
		}, func(string) {}, noStop)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("process was not killed after context cancellation")
	}
}
