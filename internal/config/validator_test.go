package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	return &Settings{
		BaseBranch:  "main",
		MetricsPort: 2112,
		Agent: AgentConfig{
			Preferred: "claude",
			Fallback:  []string{"codex", "gemini"},
		},
		Verification: VerificationConfig{
			MaxAttempts:      3,
			PropagationDelay: 3 * time.Second,
		},
		Execution: ExecutionConfig{Backend: "subprocess"},
		Storage: StorageConfig{
			Backend:     "sqlite",
			SQLitePath:  "pipeline.db",
			FeatureFile: "features.json",
		},
		DequeuePollDelay: 2 * time.Second,
	}
}

func TestValidate_ValidConfiguration(t *testing.T) {
	assert.NoError(t, Validate(validSettings()))
}

func TestValidate_InvalidMetricsPort(t *testing.T) {
	s := validSettings()
	s.MetricsPort = 99999
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metrics_port must be between 1 and 65535")
}

func TestValidate_NonPositiveVerificationAttempts(t *testing.T) {
	s := validSettings()
	s.Verification.MaxAttempts = 0
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "verification.max_attempts must be positive")
}

func TestValidate_UnknownExecutionBackend(t *testing.T) {
	s := validSettings()
	s.Execution.Backend = "lambda"
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "execution.backend must be one of")
}

func TestValidate_DockerBackendRequiresImage(t *testing.T) {
	s := validSettings()
	s.Execution.Backend = "docker"
	s.Execution.Docker.Image = ""
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "execution.docker.image must be set")
}

func TestValidate_UnknownStorageBackend(t *testing.T) {
	s := validSettings()
	s.Storage.Backend = "mongo"
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "storage.backend must be one of")
}

func TestValidate_UnknownPreferredAgent(t *testing.T) {
	s := validSettings()
	s.Agent.Preferred = "chatgpt"
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "agent.preferred must be one of")
}

func TestValidate_TracksRequireExactlyOneDefault(t *testing.T) {
	s := validSettings()
	s.Tracks = []TrackConfig{{Name: "core"}, {Name: "infra"}}
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one track must be marked default")
}

func TestValidate_TracksRejectDuplicateNames(t *testing.T) {
	s := validSettings()
	s.Tracks = []TrackConfig{{Name: "core", Default: true}, {Name: "core"}}
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate track name")
}

func TestValidate_MultipleErrorsAreJoined(t *testing.T) {
	s := validSettings()
	s.MetricsPort = -1
	s.DequeuePollDelay = 0
	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "metrics_port")
	assert.Contains(t, err.Error(), "dequeue_poll_delay")
}
