package featuresync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pipeline/internal/model"
)

// GitHubConfig configures the GitHub-issues feature source.
type GitHubConfig struct {
	Owner    string
	Repo     string
	Token    string
	Labels   []string
	Category string
}

// GitHubSource fetches open issues matching a label set from the GitHub
// REST API, the same plain net/http style as JiraSource — the pack never
// carries a GitHub SDK, only the teacher's own hand-rolled REST calls
// elsewhere (e.g. internal/git's remote helpers), so this follows suit.
type GitHubSource struct {
	cfg    GitHubConfig
	client *http.Client
}

func NewGitHubSource(cfg GitHubConfig) *GitHubSource {
	return &GitHubSource{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *GitHubSource) Name() string { return "github" }

type githubIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func (s *GitHubSource) Fetch(ctx context.Context) ([]model.Feature, error) {
	endpoint := fmt.Sprintf("https://api.github.com/repos/%s/%s/issues?state=open", s.cfg.Owner, s.cfg.Repo)
	if len(s.cfg.Labels) > 0 {
		endpoint += "&labels=" + url.QueryEscape(strings.Join(s.cfg.Labels, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("featuresync: build github request: %w", err)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("featuresync: github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("featuresync: github issues returned status %d", resp.StatusCode)
	}

	var issues []githubIssue
	if err := json.NewDecoder(resp.Body).Decode(&issues); err != nil {
		return nil, fmt.Errorf("featuresync: decode github response: %w", err)
	}

	features := make([]model.Feature, 0, len(issues))
	for _, issue := range issues {
		features = append(features, model.Feature{
			Category:    s.cfg.Category,
			Name:        fmt.Sprintf("#%d: %s", issue.Number, issue.Title),
			Description: issue.Body,
			Status:      model.FeatureOpen,
		})
	}
	return features, nil
}
