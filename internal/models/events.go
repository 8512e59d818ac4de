package models

// Event type identifiers published to Kafka.
const (
	EventTypeRunTriggered        = "audio.pipeline.run.triggered"
	EventTypeTranscriptCompleted = "audio.pipeline.transcript.completed"
)

// RunTriggeredEvent is published after a pipeline run has been submitted.
type RunTriggeredEvent struct {
	EventID      string `json:"eventId"`
	EventType    string `json:"eventType"`
	RunID        string `json:"runId"`
	RunName      string `json:"runName"`
	ExperimentID string `json:"experimentId"`
	PipelineID   string `json:"pipelineId"`
	Bucket       string `json:"bucket"`
	ObjectKey    string `json:"objectKey"`
	Timestamp    int64  `json:"timestamp"`
}

// TranscriptCompletedEvent is published after a batch has been assembled.
type TranscriptCompletedEvent struct {
	EventID        string  `json:"eventId"`
	EventType      string  `json:"eventType"`
	SourceAudio    string  `json:"sourceAudio"`
	TranscriptURI  string  `json:"transcriptUri,omitempty"`
	Segments       int     `json:"segments"`
	FailedSegments int     `json:"failedSegments"`
	TotalWords     int     `json:"totalWords"`
	TotalDuration  float64 `json:"totalDuration"`
	Timestamp      int64   `json:"timestamp"`
}
