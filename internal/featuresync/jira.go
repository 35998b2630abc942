package featuresync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"pipeline/internal/model"
)

// JiraConfig configures the Jira feature source. When CredentialsSecret
// is set, URL/Email/APIToken are resolved from a Kubernetes Secret of
// that name at every Fetch, filling only the fields left empty, instead of
// being supplied directly, letting a
// cluster-deployed poller avoid storing the API token in its own config.
type JiraConfig struct {
	URL               string
	Email             string
	APIToken          string
	JQL               string
	Category          string
	CredentialsSecret string
}

// JiraSource fetches issues matching a JQL query from Jira's REST API,
// grounded on the teacher's internal/jira.Client: plain net/http, basic
// auth with an API token in place of a password, no SDK.
type JiraSource struct {
	cfg    JiraConfig
	client *http.Client
}

func NewJiraSource(cfg JiraConfig) *JiraSource {
	return &JiraSource{cfg: cfg, client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *JiraSource) Name() string { return "jira" }

type jiraSearchResponse struct {
	Issues []jiraIssue `json:"issues"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description any    `json:"description"`
	} `json:"fields"`
}

func (s *JiraSource) Fetch(ctx context.Context) ([]model.Feature, error) {
	if err := loadJiraSecret(ctx, &s.cfg); err != nil {
		return nil, err
	}

	jql := s.cfg.JQL
	if jql == "" {
		jql = `status = "To Do" AND labels = "pipeline-agent"`
	}

	endpoint := fmt.Sprintf("%s/rest/api/3/search?jql=%s&maxResults=50", s.cfg.URL, url.QueryEscape(jql))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("featuresync: build jira request: %w", err)
	}
	req.SetBasicAuth(s.cfg.Email, s.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("featuresync: jira request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("featuresync: jira search returned status %d", resp.StatusCode)
	}

	var parsed jiraSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("featuresync: decode jira response: %w", err)
	}

	features := make([]model.Feature, 0, len(parsed.Issues))
	for _, issue := range parsed.Issues {
		features = append(features, model.Feature{
			Category:    s.cfg.Category,
			Name:        fmt.Sprintf("%s: %s", issue.Key, issue.Fields.Summary),
			Description: describeJiraBody(issue.Fields.Description),
			Status:      model.FeatureOpen,
		})
	}
	return features, nil
}

// describeJiraBody flattens Atlassian Document Format text nodes into a
// plain string; anything unrecognized falls back to an empty description
// rather than failing the whole fetch.
func describeJiraBody(body any) string {
	m, ok := body.(map[string]interface{})
	if !ok {
		return ""
	}
	content, _ := m["content"].([]interface{})
	var out string
	for _, block := range content {
		blockMap, ok := block.(map[string]interface{})
		if !ok {
			continue
		}
		inner, _ := blockMap["content"].([]interface{})
		for _, node := range inner {
			nodeMap, ok := node.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := nodeMap["text"].(string); ok {
				if out != "" {
					out += " "
				}
				out += text
			}
		}
	}
	return out
}
