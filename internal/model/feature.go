// Package model holds the shared data shapes that flow between the
// scheduler, the stores, the git workspace manager, and the agent executor.
package model

// FeatureStatus is the lifecycle state of a Feature as tracked by the
// Feature Store.
type FeatureStatus string

const (
	FeatureOpen       FeatureStatus = "open"
	FeatureVerifying  FeatureStatus = "verifying"
	FeaturePassed     FeatureStatus = "passed"
	FeatureFailed     FeatureStatus = "failed"
)

// FailureKind classifies why a feature failed, distinct from the process-level
// error taxonomy in package errs.
type FailureKind string

const (
	FailureEnvironment  FailureKind = "environment"
	FailureTestOnly     FailureKind = "test_only"
	FailureImplementation FailureKind = "implementation"
	FailureVerification FailureKind = "verification"
	FailureUnknown      FailureKind = "unknown"
)

// Feature is one unit of work the orchestrator drives through
// implementation, merge, and verification.
type Feature struct {
	ID          int           `json:"id"`
	Category    string        `json:"category"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Steps       []string      `json:"steps"`
	Status      FeatureStatus `json:"status"`
	FailureReason string      `json:"failureReason,omitempty"`
	FailureKind FailureKind   `json:"failureKind,omitempty"`
	Progress    string        `json:"progress,omitempty"`
}

// FeatureList is the on-disk shape of the feature file. The Feature Store
// accepts either a bare array or this wrapped object, and remembers which
// form it read so it can write the same form back.
type FeatureList struct {
	Features []Feature `json:"features"`
}
