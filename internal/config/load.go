// Package config loads and validates the project configuration that seeds
// the Orchestrator, the Agent Executor, and the domain-stack companions
// (execution backends, feature-source sync, notification hooks).
// Grounded on internal/config/load.go's godotenv-then-viper sequencing and
// default-file-bootstrap behavior, generalized from a flat key/value bag
// read ad hoc by callers into a typed Settings struct decoded once via
// mapstructure.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PIPELINE"

// Load reads configuration from changed flags, environment variables
// prefixed PIPELINE_, cfgFile (or ./config.yaml when empty), and the
// built-in defaults below, in that precedence order, and decodes the result
// into a Settings. A missing ./config.yaml is not an error; one is
// bootstrapped with defaults the same way the teacher's Load does, unless
// project_root is already supplied through the environment (serve-mode
// processes that always pass an explicit config shouldn't get a stray file
// written next to them). A missing explicit cfgFile is an error.
func Load(cfgFile string, flags *pflag.FlagSet) (*Settings, error) {
	if err := godotenv.Load(); err != nil {
		// No .env file is the common case; nothing to report.
		_ = err
	}

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("config: read config: %w", err)
		}
		if cfgFile == "" && os.Getenv(envPrefix+"_PROJECT_ROOT") == "" {
			if err := v.SafeWriteConfigAs("config.yaml"); err != nil {
				if _, exists := os.Stat("config.yaml"); os.IsNotExist(exists) {
					fmt.Fprintf(os.Stderr, "config: warning: failed to write default config.yaml: %v\n", err)
				}
			} else {
				fmt.Fprintln(os.Stderr, "config: created default configuration file: config.yaml")
			}
		}
	} else {
		fmt.Fprintln(os.Stderr, "config: using config file:", v.ConfigFileUsed())
	}

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return &settings, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("project_name", "")
	v.SetDefault("base_branch", "main")
	v.SetDefault("remote_name", "origin")
	v.SetDefault("git_user_name", "pipeline-agent")
	v.SetDefault("git_user_email", "pipeline-agent@example.com")

	v.SetDefault("agent.preferred", "claude")
	v.SetDefault("agent.fallback", []string{"codex", "gemini"})
	v.SetDefault("agent.rate_limit_delay", 60*time.Second)
	v.SetDefault("agent.verification_turn_limit", 20)

	v.SetDefault("verification.max_attempts", 3)
	v.SetDefault("verification.propagation_delay", 3*time.Second)
	v.SetDefault("verification.disabled", false)

	v.SetDefault("execution.backend", "subprocess")
	v.SetDefault("execution.docker.image", "node:20-bookworm")
	v.SetDefault("execution.k8s.namespace", "default")

	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.sqlite_path", "pipeline.db")
	v.SetDefault("storage.feature_file", "features.json")

	v.SetDefault("dequeue_poll_delay", 2*time.Second)
	v.SetDefault("failure_pacing_threshold", 10*time.Second)
	v.SetDefault("failure_pacing_delay", 5*time.Second)

	v.SetDefault("metrics_port", 2112)
	v.SetDefault("admin_port", 2113)
	v.SetDefault("admin_addr", "http://127.0.0.1:2113")
	v.SetDefault("log_level", "info")
	v.SetDefault("verbose", false)

	slackEnabled := os.Getenv("SLACK_BOT_TOKEN") != ""
	v.SetDefault("notifications.slack.enabled", slackEnabled)
	v.SetDefault("notifications.slack.channel", "#pipeline")
	v.SetDefault("notifications.slack.on_start", false)
	v.SetDefault("notifications.slack.on_pass", true)
	v.SetDefault("notifications.slack.on_fail", true)
	v.SetDefault("notifications.slack.on_critical_failure", true)

	v.SetDefault("featuresync.jira.interval", 2*time.Minute)
	v.SetDefault("featuresync.github.interval", 2*time.Minute)
	v.SetDefault("featuresync.file_dir.interval", 15*time.Second)

	// A bare JIRA_URL (no PIPELINE_ prefix) is honored the way the teacher
	// honors a bare JIRA_URL alongside its own RECAC_JIRA_URL.
	if os.Getenv(envPrefix+"_FEATURESYNC_JIRA_URL") == "" && os.Getenv("JIRA_URL") != "" {
		v.SetDefault("featuresync.jira.url", os.Getenv("JIRA_URL"))
	}
}
