package featuresync

import (
	"context"
	"fmt"
	"os"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// loadJiraSecret fills in URL/Email/APIToken on cfg from a Kubernetes
// Secret when cfg.CredentialsSecret is set, adapted from the teacher's
// internal/auth.JiraAuthenticator: that package only ever read a secret
// named username/api-key/base-url in-cluster, so this keeps the same key
// names and in-cluster-only resolution rather than generalizing to
// kubeconfig fallback, since a feature-sync poller only ever runs as part
// of `serve`, which itself only runs in-cluster when this path applies.
func loadJiraSecret(ctx context.Context, cfg *JiraConfig) error {
	if cfg.CredentialsSecret == "" {
		return nil
	}

	client, err := newInClusterSecretsClient()
	if err != nil {
		return fmt.Errorf("featuresync: jira secret client: %w", err)
	}

	namespace := secretNamespace()
	secret, err := client.CoreV1().Secrets(namespace).Get(ctx, cfg.CredentialsSecret, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("featuresync: get jira secret %s/%s: %w", namespace, cfg.CredentialsSecret, err)
	}

	if v, ok := secret.Data["base-url"]; ok && cfg.URL == "" {
		cfg.URL = string(v)
	}
	if v, ok := secret.Data["username"]; ok && cfg.Email == "" {
		cfg.Email = string(v)
	}
	if v, ok := secret.Data["api-key"]; ok && cfg.APIToken == "" {
		cfg.APIToken = string(v)
	}
	return nil
}

var newInClusterSecretsClient = func() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}

func secretNamespace() string {
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}
	return "default"
}
