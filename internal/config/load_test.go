package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	settings, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "main", settings.BaseBranch)
	assert.Equal(t, "claude", settings.Agent.Preferred)
	assert.Equal(t, []string{"codex", "gemini"}, settings.Agent.Fallback)
	assert.Equal(t, 3, settings.Verification.MaxAttempts)
	assert.Equal(t, "subprocess", settings.Execution.Backend)
	assert.Equal(t, "sqlite", settings.Storage.Backend)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
}

func TestLoad_EnvOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	os.Setenv("PIPELINE_BASE_BRANCH", "develop")
	defer os.Unsetenv("PIPELINE_BASE_BRANCH")

	settings, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "develop", settings.BaseBranch)
}

func TestLoad_ExplicitFileIsRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_branch: release\nmetrics_port: 9000\n"), 0644))

	settings, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "release", settings.BaseBranch)
	assert.Equal(t, 9000, settings.MetricsPort)
}
