package models

// Segment is a time-bounded slice of an audio file produced by the splitting stage.
type Segment struct {
	SegmentID int     `json:"segment_id"`
	Path      string  `json:"path"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	Filename  string  `json:"filename"`
}

// TranscriptionResult is the outcome of transcribing one segment.
type TranscriptionResult struct {
	SegmentID int     `json:"segment_id"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	Filename  string  `json:"filename"`
	Success   bool    `json:"success"`
	Error     string  `json:"error,omitempty"`
	Attempts  int     `json:"attempts"`
}

// TranscriptMetadata summarizes an assembled transcript.
type TranscriptMetadata struct {
	SourceAudio        string                `json:"source_audio"`
	SampleRate         int                   `json:"sample_rate"`
	TotalSegments      int                   `json:"total_segments"`
	TotalDuration      float64               `json:"total_duration"`
	TotalWords         int                   `json:"total_words"`
	AvgSegmentDuration float64               `json:"avg_segment_duration"`
	Segments           []TranscriptionResult `json:"segments"`
}

// Transcript is the assembled document for a finished batch.
type Transcript struct {
	Document string
	Results  []TranscriptionResult
	Metadata TranscriptMetadata
}
