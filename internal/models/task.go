// Package models defines data structures for lecturelens analysis tasks.
package models

import (
	"encoding/json"
	"time"
)

// Status is the coarse lifecycle state of a task.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"

	// StatusNotFound is only ever returned to status pollers, never stored.
	StatusNotFound Status = "not_found"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage is the pipeline step a task is in, or the step it failed at.
type Stage string

const (
	StageNone             Stage = ""
	StageDownloading      Stage = "downloading"
	StageTranscribing     Stage = "transcribing"
	StageAnalyzingText    Stage = "analyzing_text"
	StageAnalyzingVisuals Stage = "analyzing_visuals"
	StageDone             Stage = "done"

	// Failure tags recorded on terminal failure.
	StageDownload      Stage = "download"
	StageTranscription Stage = "transcription"
)

// Rank returns the position of a progress stage in the pipeline order.
// Failure tags rank with the step they belong to.
func (s Stage) Rank() int {
	switch s {
	case StageDownloading, StageDownload:
		return 1
	case StageTranscribing, StageTranscription:
		return 2
	case StageAnalyzingText:
		return 3
	case StageAnalyzingVisuals:
		return 4
	case StageDone:
		return 5
	default:
		return 0
	}
}

// Progress returns the fraction of the pipeline finished once this stage is reached.
func (s Stage) Progress() float64 {
	r := s.Rank()
	if r == 0 {
		return 0
	}
	return float64(r-1) / 4
}

// Task is one client-initiated analysis request and its evolving state.
type Task struct {
	ID          string
	URL         string
	Status      Status
	Stage       Stage
	Result      *AnalysisResult
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// HasTranscript reports whether the task holds grounding text.
func (t Task) HasTranscript() bool {
	return t.Result != nil && t.Result.FullText != ""
}

type taskJSON struct {
	ID          string     `json:"task_id"`
	URL         string     `json:"url,omitempty"`
	Status      Status     `json:"status"`
	Stage       Stage      `json:"stage,omitempty"`
	Result      any        `json:"result"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MarshalJSON emits result as the analysis object when completed,
// the failure reason when failed, and null otherwise.
func (t Task) MarshalJSON() ([]byte, error) {
	out := taskJSON{
		ID:          t.ID,
		URL:         t.URL,
		Status:      t.Status,
		Stage:       t.Stage,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		CompletedAt: t.CompletedAt,
	}
	switch t.Status {
	case StatusCompleted:
		out.Result = t.Result
	case StatusFailed:
		out.Result = t.Error
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (t *Task) UnmarshalJSON(data []byte) error {
	var in struct {
		taskJSON
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Task{
		ID:          in.ID,
		URL:         in.URL,
		Status:      in.Status,
		Stage:       in.Stage,
		CreatedAt:   in.CreatedAt,
		UpdatedAt:   in.UpdatedAt,
		CompletedAt: in.CompletedAt,
	}
	if len(in.Result) == 0 || string(in.Result) == "null" {
		return nil
	}
	switch in.Status {
	case StatusCompleted:
		var r AnalysisResult
		if err := json.Unmarshal(in.Result, &r); err != nil {
			return err
		}
		t.Result = &r
	case StatusFailed:
		return json.Unmarshal(in.Result, &t.Error)
	}
	return nil
}
