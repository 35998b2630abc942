package config

import "time"

// TrackConfig is the on-disk shape of one track definition.
type TrackConfig struct {
	Name       string   `mapstructure:"name"`
	Categories []string `mapstructure:"categories"`
	Color      string   `mapstructure:"color"`
	Default    bool     `mapstructure:"default"`
}

// AgentOverride lets a project replace the default command/args used to
// invoke one configured agent identity.
type AgentOverride struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

// AgentConfig is the `agent` block of the project configuration file.
type AgentConfig struct {
	Preferred             string                   `mapstructure:"preferred"`
	Fallback              []string                 `mapstructure:"fallback"`
	Overrides             map[string]AgentOverride `mapstructure:"overrides"`
	DependencyDirs        []string                 `mapstructure:"dependency_dirs"`
	RateLimitDelay        time.Duration            `mapstructure:"rate_limit_delay"`
	VerificationTurnLimit int                      `mapstructure:"verification_turn_limit"`
	PromptDir             string                   `mapstructure:"prompt_dir"`
}

// VerificationConfig is the `verification` block.
type VerificationConfig struct {
	MaxAttempts      int           `mapstructure:"max_attempts"`
	PropagationDelay time.Duration `mapstructure:"propagation_delay"`
	Disabled         bool          `mapstructure:"disabled"`
}

// ExecutionConfig selects and configures the Agent Executor's subprocess
// strategy: bare local process, a Docker container, or a Kubernetes Job.
type ExecutionConfig struct {
	Backend string `mapstructure:"backend"` // subprocess | docker | k8s

	Docker struct {
		Image   string   `mapstructure:"image"`
		Network string   `mapstructure:"network"`
		Env     []string `mapstructure:"env"`
	} `mapstructure:"docker"`

	K8s struct {
		Namespace      string `mapstructure:"namespace"`
		Image          string `mapstructure:"image"`
		ServiceAccount string `mapstructure:"service_account"`
		Kubeconfig     string `mapstructure:"kubeconfig"`
	} `mapstructure:"k8s"`
}

// StorageConfig selects the Session Log backend and names the Feature
// Store's JSON file; the Feature Store itself has no alternate backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"` // memory | sqlite | postgres
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	FeatureFile string `mapstructure:"feature_file"`
}

// SlackNotifyConfig mirrors the teacher's per-event-type enable flags.
type SlackNotifyConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Channel  string `mapstructure:"channel"`
	OnStart  bool   `mapstructure:"on_start"`
	OnPass   bool   `mapstructure:"on_pass"`
	OnFail   bool   `mapstructure:"on_fail"`
	OnCrit   bool   `mapstructure:"on_critical_failure"`
}

// DiscordNotifyConfig is a webhook-only companion to Slack.
type DiscordNotifyConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
}

// NotifyConfig is the `notifications` block.
type NotifyConfig struct {
	Slack   SlackNotifyConfig   `mapstructure:"slack"`
	Discord DiscordNotifyConfig `mapstructure:"discord"`
}

// JiraPollConfig configures the Jira feature-source poller.
type JiraPollConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	URL               string        `mapstructure:"url"`
	Email             string        `mapstructure:"email"`
	APIToken          string        `mapstructure:"api_token"`
	JQL               string        `mapstructure:"jql"`
	Interval          time.Duration `mapstructure:"interval"`
	Category          string        `mapstructure:"category"`
	CredentialsSecret string        `mapstructure:"credentials_secret"`
}

// GitHubPollConfig configures the GitHub-issues feature-source poller.
type GitHubPollConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Owner    string        `mapstructure:"owner"`
	Repo     string        `mapstructure:"repo"`
	Token    string        `mapstructure:"token"`
	Labels   []string      `mapstructure:"labels"`
	Interval time.Duration `mapstructure:"interval"`
	Category string        `mapstructure:"category"`
}

// FileDirPollConfig watches a directory of one-JSON-file-per-feature.
type FileDirPollConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Dir      string        `mapstructure:"dir"`
	Interval time.Duration `mapstructure:"interval"`
	Category string        `mapstructure:"category"`
}

// FeatureSyncConfig is the `featuresync` block.
type FeatureSyncConfig struct {
	Jira    JiraPollConfig    `mapstructure:"jira"`
	GitHub  GitHubPollConfig  `mapstructure:"github"`
	FileDir FileDirPollConfig `mapstructure:"file_dir"`
}

// Settings is the fully decoded project configuration.
type Settings struct {
	ProjectName      string        `mapstructure:"project_name"`
	ProjectRoot      string        `mapstructure:"project_root"`
	BaseBranch       string        `mapstructure:"base_branch"`
	ApplicationURL   string        `mapstructure:"application_url"`
	InstructionsPath string        `mapstructure:"instructions_path"`
	RemoteName       string        `mapstructure:"remote_name"`
	PreservePaths    []string      `mapstructure:"preserve_paths"`
	GitUserName      string        `mapstructure:"git_user_name"`
	GitUserEmail     string        `mapstructure:"git_user_email"`

	Tracks       []TrackConfig       `mapstructure:"tracks"`
	Agent        AgentConfig         `mapstructure:"agent"`
	Verification VerificationConfig `mapstructure:"verification"`
	Execution    ExecutionConfig     `mapstructure:"execution"`
	Storage      StorageConfig       `mapstructure:"storage"`
	Notifications NotifyConfig       `mapstructure:"notifications"`
	FeatureSync  FeatureSyncConfig   `mapstructure:"featuresync"`

	DequeuePollDelay       time.Duration `mapstructure:"dequeue_poll_delay"`
	FailurePacingThreshold time.Duration `mapstructure:"failure_pacing_threshold"`
	FailurePacingDelay     time.Duration `mapstructure:"failure_pacing_delay"`

	MetricsPort int    `mapstructure:"metrics_port"`
	AdminPort   int    `mapstructure:"admin_port"`
	AdminAddr   string `mapstructure:"admin_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogPath     string `mapstructure:"log_path"`
	Verbose     bool   `mapstructure:"verbose"`
}
