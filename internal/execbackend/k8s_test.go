package execbackend

import (
	"context"
	"testing"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestK8sBackend_RequiresImage(t *testing.T) {
	_, err := NewK8sBackend(K8sConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an image")
}

func TestSanitizeK8sName(t *testing.T) {
	assert.Equal(t, "my-feature-42", sanitizeK8sName("My_Feature--42"))
	assert.Equal(t, "abc", sanitizeK8sName("--ABC--"))
}

func TestK8sBackend_WaitForPod_FindsRunningPod(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "agent-abc",
			Namespace: "default",
			Labels:    map[string]string{"job-name": "pipeline-agent-1"},
		},
		Status: corev1.PodStatus{Phase: corev1.PodRunning},
	})
	b := &K8sBackend{client: client, namespace: "default"}

	podName, err := b.waitForPod(context.Background(), "pipeline-agent-1", noStop)
	require.NoError(t, err)
	assert.Equal(t, "agent-abc", podName)
}

func TestK8sBackend_WaitForPod_StopsWhenRequested(t *testing.T) {
	client := fake.NewSimpleClientset()
	b := &K8sBackend{client: client, namespace: "default"}

	stopped := false
	stop := func() bool { return stopped }

	done := make(chan error, 1)
	go func() {
		_, err := b.waitForPod(context.Background(), "pipeline-agent-never", stop)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	stopped = true

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waitForPod did not honor stop()")
	}
}

func TestK8sBackend_WaitForCompletion_Succeeded(t *testing.T) {
	client := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "pipeline-agent-1", Namespace: "default"},
		Status:     batchv1.JobStatus{Succeeded: 1},
	})
	b := &K8sBackend{client: client, namespace: "default"}

	err := b.waitForCompletion(context.Background(), "pipeline-agent-1", noStop)
	assert.NoError(t, err)
}

func TestK8sBackend_WaitForCompletion_Failed(t *testing.T) {
	client := fake.NewSimpleClientset(&batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: "pipeline-agent-1", Namespace: "default"},
		Status:     batchv1.JobStatus{Failed: 1},
	})
	b := &K8sBackend{client: client, namespace: "default"}

	err := b.waitForCompletion(context.Background(), "pipeline-agent-1", noStop)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}
