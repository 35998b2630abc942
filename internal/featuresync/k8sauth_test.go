package featuresync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/fake"
)

func withFakeSecretsClient(t *testing.T) {
	client := fake.NewSimpleClientset(&corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: "jira-creds", Namespace: "default"},
		Data: map[string][]byte{
			"base-url": []byte("https://issues.example.com"),
			"username": []byte("bot@example.com"),
			"api-key":  []byte("s3cr3t"),
		},
	})

	old := newInClusterSecretsClient
	newInClusterSecretsClient = func() (kubernetes.Interface, error) { return client, nil }
	t.Cleanup(func() { newInClusterSecretsClient = old })
}

func TestLoadJiraSecret_NoopWhenNotConfigured(t *testing.T) {
	cfg := JiraConfig{}
	require.NoError(t, loadJiraSecret(context.Background(), &cfg))
	assert.Empty(t, cfg.URL)
}

func TestLoadJiraSecret_FillsFromSecret(t *testing.T) {
	withFakeSecretsClient(t)

	cfg := JiraConfig{CredentialsSecret: "jira-creds"}
	require.NoError(t, loadJiraSecret(context.Background(), &cfg))

	assert.Equal(t, "https://issues.example.com", cfg.URL)
	assert.Equal(t, "bot@example.com", cfg.Email)
	assert.Equal(t, "s3cr3t", cfg.APIToken)
}

func TestLoadJiraSecret_DoesNotOverrideExistingValues(t *testing.T) {
	withFakeSecretsClient(t)

	cfg := JiraConfig{CredentialsSecret: "jira-creds", URL: "https://explicit.example.com"}
	require.NoError(t, loadJiraSecret(context.Background(), &cfg))

	assert.Equal(t, "https://explicit.example.com", cfg.URL)
	assert.Equal(t, "bot@example.com", cfg.Email)
}
