package model

import "time"

// TrackDefinition names a lane and the feature categories it accepts.
type TrackDefinition struct {
	Name    string   `json:"name"`
	Categories []string `json:"categories"`
	Color   string   `json:"color,omitempty"`
	Default bool     `json:"default"`
}

// QueueItem is one pending unit of work for a track's queue.
type QueueItem struct {
	FeatureID        int    `json:"featureId"`
	Retry            bool   `json:"retry"`
	Resume           bool   `json:"resume"`
	ExtraContext     string `json:"extraContext,omitempty"`
	PreviousSessionID string `json:"previousSessionId,omitempty"`
}

// TrackRuntimeStatus is the read-only snapshot published through the event
// bus for one track.
type TrackRuntimeStatus struct {
	Track            string `json:"track"`
	CurrentFeatureID int    `json:"currentFeatureId,omitempty"`
	CurrentSessionID string `json:"currentSessionId,omitempty"`
	Queued           int    `json:"queued"`
	Completed        int    `json:"completed"`
	Failed           int    `json:"failed"`
}

// OrchestratorState is the scheduler's own lifecycle state.
type OrchestratorState string

const (
	StateStopped OrchestratorState = "stopped"
	StateSetup   OrchestratorState = "setup"
	StateRunning OrchestratorState = "running"
	StateStopping OrchestratorState = "stopping"
)

// ResumeRequest, while set, blocks every track other than Track from
// dequeuing until the targeted feature finishes.
type ResumeRequest struct {
	FeatureID   int       `json:"featureId"`
	Track       string    `json:"track"`
	RequestedAt time.Time `json:"requestedAt"`
}
