// Command pipeline is the project's entrypoint, grounded on the
// teacher's cmd/orchestrator/main.go: parse flags, load configuration,
// build the collaborator graph, run until signalled. Generalized from
// one fixed binary into a spf13/cobra tree of subcommands, since this
// module has more than one operator-facing entrypoint (serve, a
// read-only status view, and the retry/resume/configure-tracks control
// operations the teacher's main.go never exposed at all).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"pipeline/internal/agentexec"
	"pipeline/internal/config"
	"pipeline/internal/eventbus"
	"pipeline/internal/execbackend"
	"pipeline/internal/featuresync"
	"pipeline/internal/gitwork"
	"pipeline/internal/model"
	"pipeline/internal/notifyhook"
	"pipeline/internal/scheduler"
	"pipeline/internal/store"
	"pipeline/internal/telemetry"
)

// app bundles every collaborator a running orchestrator needs, built once
// per process invocation of `serve`.
type app struct {
	settings *config.Settings
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	bus      *eventbus.Bus
	features *store.FeatureStore
	sessions store.SessionLog
	git      *gitwork.Manager
	executor *agentexec.Executor
	sched    *scheduler.Orchestrator
}

func loadSettings(cfgFile string, flags *pflag.FlagSet) (*config.Settings, error) {
	settings, err := config.Load(cfgFile, flags)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := config.Validate(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return settings, nil
}

func buildApp(settings *config.Settings) (*app, error) {
	logger, err := telemetry.NewLogger(settings.Verbose, settings.LogPath)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics := telemetry.NewMetrics()
	bus := eventbus.New()

	features := store.NewFeatureStore(settings.Storage.FeatureFile, metrics.LockContention.Inc)

	sessions, err := store.NewSessionLog(store.SessionLogConfig{
		Driver:      settings.Storage.Backend,
		SQLitePath:  settings.Storage.SQLitePath,
		PostgresDSN: settings.Storage.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("build session log: %w", err)
	}

	git := gitwork.New(gitwork.Config{
		ProjectRoot:   settings.ProjectRoot,
		WorktreesDir:  ".pipeline-worktrees",
		BaseBranch:    settings.BaseBranch,
		Remote:        settings.RemoteName,
		PreserveFiles: settings.PreservePaths,
	})

	var backend execbackend.Backend
	if settings.Execution.Backend != "" && settings.Execution.Backend != "subprocess" {
		backend, err = execbackend.New(settings.Execution.Backend, execbackend.Config{
			Docker: execbackend.DockerConfig{
				Image:   settings.Execution.Docker.Image,
				Network: settings.Execution.Docker.Network,
				Env:     settings.Execution.Docker.Env,
			},
			K8s: execbackend.K8sConfig{
				Namespace:      settings.Execution.K8s.Namespace,
				Image:          settings.Execution.K8s.Image,
				ServiceAccount: settings.Execution.K8s.ServiceAccount,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("build execution backend: %w", err)
		}
	}

	overrides := make(map[model.AgentIdentity]agentexec.CommandOverride, len(settings.Agent.Overrides))
	for name, o := range settings.Agent.Overrides {
		overrides[model.AgentIdentity(name)] = agentexec.CommandOverride{Command: o.Command, Args: o.Args}
	}
	fallback := make([]model.AgentIdentity, 0, len(settings.Agent.Fallback))
	for _, f := range settings.Agent.Fallback {
		fallback = append(fallback, model.AgentIdentity(f))
	}

	executor := agentexec.New(agentexec.Config{
		PreferredAgent: model.AgentIdentity(settings.Agent.Preferred),
		FallbackAgents: fallback,
		Overrides:      overrides,
		DependencyDirs: settings.Agent.DependencyDirs,
		RateLimitDelay: settings.Agent.RateLimitDelay,
		Prompt: agentexec.PromptConfig{
			ProjectRoot: settings.ProjectRoot,
		},
		VerificationTurnLimit: settings.Agent.VerificationTurnLimit,
		Backend:               backend,
		Git:                   git,
	})

	schedCfg := scheduler.DefaultConfig()
	schedCfg.ProjectRoot = settings.ProjectRoot
	schedCfg.ApplicationURL = settings.ApplicationURL
	schedCfg.BaseBranch = settings.BaseBranch
	schedCfg.InstructionsPath = settings.InstructionsPath
	schedCfg.VerificationMaxAttempts = settings.Verification.MaxAttempts
	schedCfg.PropagationDelay = settings.Verification.PropagationDelay
	schedCfg.VerificationDisabled = settings.Verification.Disabled
	schedCfg.RateLimitDelay = settings.Agent.RateLimitDelay
	schedCfg.DequeuePollDelay = settings.DequeuePollDelay
	schedCfg.FailurePacingThreshold = settings.FailurePacingThreshold
	schedCfg.FailurePacingDelay = settings.FailurePacingDelay

	var tracks []model.TrackDefinition
	for _, t := range settings.Tracks {
		tracks = append(tracks, model.TrackDefinition{Name: t.Name, Categories: t.Categories, Color: t.Color, Default: t.Default})
	}

	sched := scheduler.New(schedCfg, features, sessions, git, executor, bus, logger, metrics, tracks, len(tracks) > 0)

	return &app{
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		bus:      bus,
		features: features,
		sessions: sessions,
		git:      git,
		executor: executor,
		sched:    sched,
	}, nil
}

// startAncillary launches the metrics HTTP endpoint, any configured
// feature-sync pollers, and the notification hook, all as background
// goroutines tied to ctx.
func (a *app) startAncillary(ctx context.Context) {
	if a.settings.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", a.settings.MetricsPort)
			srv := &http.Server{Addr: addr, Handler: a.metrics.Handler()}
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.logger.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	a.startAdminAPI(ctx)
	a.startFeatureSync(ctx)
	a.startNotifyHook(ctx)
}

func (a *app) startFeatureSync(ctx context.Context) {
	var pollers []*featuresync.Poller
	fs := a.settings.FeatureSync

	if fs.Jira.Enabled {
		src := featuresync.NewJiraSource(featuresync.JiraConfig{
			URL: fs.Jira.URL, Email: fs.Jira.Email, APIToken: fs.Jira.APIToken,
			JQL: fs.Jira.JQL, Category: fs.Jira.Category, CredentialsSecret: fs.Jira.CredentialsSecret,
		})
		pollers = append(pollers, featuresync.NewPoller(src, a.features, fs.Jira.Interval, a.logger))
	}
	if fs.GitHub.Enabled {
		src := featuresync.NewGitHubSource(featuresync.GitHubConfig{
			Owner: fs.GitHub.Owner, Repo: fs.GitHub.Repo, Token: fs.GitHub.Token,
			Labels: fs.GitHub.Labels, Category: fs.GitHub.Category,
		})
		pollers = append(pollers, featuresync.NewPoller(src, a.features, fs.GitHub.Interval, a.logger))
	}
	if fs.FileDir.Enabled {
		src := featuresync.NewFileDirSource(featuresync.FileDirConfig{Dir: fs.FileDir.Dir, Category: fs.FileDir.Category})
		pollers = append(pollers, featuresync.NewPoller(src, a.features, fs.FileDir.Interval, a.logger))
	}

	if len(pollers) > 0 {
		featuresync.NewGroup(pollers...).Start(ctx)
	}
}

func (a *app) startNotifyHook(ctx context.Context) {
	var senders []notifyhook.Sender
	n := a.settings.Notifications

	if n.Slack.Enabled {
		senders = append(senders, notifyhook.NewSlackSender(os.Getenv("SLACK_BOT_TOKEN"), n.Slack.Channel))
	}
	if n.Discord.Enabled {
		senders = append(senders, notifyhook.NewDiscordSender(n.Discord.WebhookURL))
	}
	if len(senders) == 0 {
		return
	}

	selector := notifyhook.EventSelector{
		OnCriticalFailure: n.Slack.OnCrit,
		OnFeaturePassed:   n.Slack.OnPass,
		OnFeatureFailed:   n.Slack.OnFail,
	}
	sub := notifyhook.NewSubscriber(a.bus, selector, a.logger, senders...)
	go sub.Run(ctx)
}
