package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"pipeline/internal/model"
)

// startAdminAPI exposes the orchestrator's control surface over plain
// net/http, the same transport the metrics endpoint already uses, so the
// retry/resume/configure-tracks/status subcommands can reach a running
// serve process without holding a socket open to its address for the
// whole process lifetime the way the teacher's Socket Mode client does.
func (a *app) startAdminAPI(ctx context.Context) {
	if a.settings.AdminPort <= 0 {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", a.handleStatus)
	mux.HandleFunc("/v1/tracks", a.handleConfigureTracks)
	mux.HandleFunc("/v1/features/retry", a.handleRetry)
	mux.HandleFunc("/v1/features/resume", a.handleResume)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", a.settings.AdminPort), Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Warn("admin api server stopped", "err", err)
		}
	}()
}

func (a *app) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.sched.GetStatus())
}

type configureTracksRequest struct {
	Tracks []model.TrackDefinition `json:"tracks"`
}

func (a *app) handleConfigureTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req configureTracksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}
	if err := a.sched.ConfigureTracks(req.Tracks); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, a.sched.GetStatus())
}

type featureActionRequest struct {
	ID   int    `json:"id"`
	Note string `json:"note"`
}

func (a *app) handleRetry(w http.ResponseWriter, r *http.Request) {
	a.handleFeatureAction(w, r, a.sched.RetryFeature)
}

func (a *app) handleResume(w http.ResponseWriter, r *http.Request) {
	a.handleFeatureAction(w, r, a.sched.ResumeFeature)
}

func (a *app) handleFeatureAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id int, note string) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req featureActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}
	if err := action(r.Context(), req.ID, req.Note); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// adminClient is the thin HTTP client the control subcommands use to reach
// a running serve process's admin API.
type adminClient struct {
	baseURL string
	http    *http.Client
}

func newAdminClient(baseURL string) *adminClient {
	return &adminClient{baseURL: baseURL, http: http.DefaultClient}
}

func (c *adminClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *adminClient) postJSON(ctx context.Context, path string, body any, out any) error {
	var reqBody []byte
	var err error
	if body != nil {
		reqBody, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, jsonReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *adminClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("admin api: %s returned %s: %s", req.URL.Path, resp.Status, string(body))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func jsonReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}
