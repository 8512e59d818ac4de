// Package models defines the data structures shared across the pipeline.
package models

import "time"

// NotificationEvent is the canonical form of a storage-mutation notification.
type NotificationEvent struct {
	Bucket    string    `json:"bucket"`
	ObjectKey string    `json:"objectKey"`
	EventTime time.Time `json:"eventTime"`
}

// ResourceRef identifies an orchestration resource by display name and id.
type ResourceRef struct {
	DisplayName string `json:"displayName"`
	ID          string `json:"id"`
}

// RunRequest is the submission for a single pipeline run.
type RunRequest struct {
	RunName      string            `json:"runName"`
	ExperimentID string            `json:"experimentId"`
	PipelineID   string            `json:"pipelineId"`
	Parameters   map[string]string `json:"parameters"`
}

// RunHandle is the result of a successful trigger.
type RunHandle struct {
	RunID     string `json:"runId"`
	RunName   string `json:"runName"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
}
