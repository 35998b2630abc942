package featuresync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pipeline/internal/model"
)

// FileDirConfig configures the watched-directory feature source.
type FileDirConfig struct {
	Dir      string
	Category string
}

// fileDirItem is the one-file-per-feature shape a directory source reads;
// a lightweight hand-authored format since the teacher's own pollers
// never define one (client_createticket.go only builds Jira's payload).
type fileDirItem struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FileDirSource reads every *.json file in a directory and treats each
// one as a candidate feature, letting an external system (a script, a
// CI step, a human) drop work items into a plain directory without
// touching the feature file's own locking discipline directly.
type FileDirSource struct {
	cfg FileDirConfig
}

func NewFileDirSource(cfg FileDirConfig) *FileDirSource {
	return &FileDirSource{cfg: cfg}
}

func (s *FileDirSource) Name() string { return "file_dir" }

func (s *FileDirSource) Fetch(ctx context.Context) ([]model.Feature, error) {
	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("featuresync: read watched dir: %w", err)
	}

	var features []model.Feature
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.cfg.Dir, entry.Name()))
		if err != nil {
			continue
		}
		var item fileDirItem
		if err := json.Unmarshal(raw, &item); err != nil || item.Name == "" {
			continue
		}
		features = append(features, model.Feature{
			Category:    s.cfg.Category,
			Name:        item.Name,
			Description: item.Description,
			Status:      model.FeatureOpen,
		})
	}
	return features, nil
}
