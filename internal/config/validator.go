package config

import (
	"fmt"
	"os"
)

// Validate checks a decoded Settings for internally-inconsistent or
// out-of-range values, following the teacher's collect-every-error-then-
// join shape rather than failing on the first problem found.
func Validate(s *Settings) error {
	var errs []string

	if s.MetricsPort < 1 || s.MetricsPort > 65535 {
		errs = append(errs, fmt.Sprintf("metrics_port must be between 1 and 65535, got: %d", s.MetricsPort))
	}

	if s.Verification.MaxAttempts <= 0 {
		errs = append(errs, fmt.Sprintf("verification.max_attempts must be positive, got: %d", s.Verification.MaxAttempts))
	}
	if s.Verification.PropagationDelay <= 0 {
		errs = append(errs, fmt.Sprintf("verification.propagation_delay must be positive, got: %v", s.Verification.PropagationDelay))
	}

	if s.DequeuePollDelay <= 0 {
		errs = append(errs, fmt.Sprintf("dequeue_poll_delay must be positive, got: %v", s.DequeuePollDelay))
	}

	switch s.Execution.Backend {
	case "subprocess", "docker", "k8s":
	default:
		errs = append(errs, fmt.Sprintf("execution.backend must be one of subprocess, docker, k8s, got: %q", s.Execution.Backend))
	}
	if s.Execution.Backend == "docker" && s.Execution.Docker.Image == "" {
		errs = append(errs, "execution.docker.image must be set when execution.backend is docker")
	}
	if s.Execution.Backend == "k8s" && s.Execution.K8s.Image == "" {
		errs = append(errs, "execution.k8s.image must be set when execution.backend is k8s")
	}

	switch s.Storage.Backend {
	case "memory", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("storage.backend must be one of memory, sqlite, postgres, got: %q", s.Storage.Backend))
	}
	if s.Storage.Backend == "sqlite" && s.Storage.SQLitePath == "" {
		errs = append(errs, "storage.sqlite_path must be set when storage.backend is sqlite")
	}
	if s.Storage.Backend == "postgres" && s.Storage.PostgresDSN == "" {
		errs = append(errs, "storage.postgres_dsn must be set when storage.backend is postgres")
	}
	if s.Storage.FeatureFile == "" {
		errs = append(errs, "storage.feature_file must be set")
	}

	if s.Agent.Preferred == "" {
		errs = append(errs, "agent.preferred must be set")
	}
	if !isKnownAgent(s.Agent.Preferred) {
		errs = append(errs, fmt.Sprintf("agent.preferred must be one of claude, codex, gemini, got: %q", s.Agent.Preferred))
	}
	for _, f := range s.Agent.Fallback {
		if !isKnownAgent(f) {
			errs = append(errs, fmt.Sprintf("agent.fallback contains unknown agent: %q", f))
		}
	}

	if len(s.Tracks) > 0 {
		defaults := 0
		seen := make(map[string]bool, len(s.Tracks))
		for _, t := range s.Tracks {
			if t.Name == "" {
				errs = append(errs, "tracks: name must not be empty")
				continue
			}
			if seen[t.Name] {
				errs = append(errs, fmt.Sprintf("tracks: duplicate track name %q", t.Name))
			}
			seen[t.Name] = true
			if t.Default {
				defaults++
			}
		}
		if defaults != 1 {
			errs = append(errs, fmt.Sprintf("tracks: exactly one track must be marked default, got %d", defaults))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	msg := errs[0]
	for _, e := range errs[1:] {
		msg += "\n  " + e
	}
	return fmt.Errorf("config: validation failed:\n  %s", msg)
}

func isKnownAgent(name string) bool {
	switch name {
	case "claude", "codex", "gemini":
		return true
	default:
		return false
	}
}

// ValidateAndExit validates s and exits non-zero on failure, printing the
// error to stderr. cmd/pipeline calls Validate directly instead.
func ValidateAndExit(s *Settings) {
	if err := Validate(s); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
