package models

import (
	"encoding/json"
	"fmt"
)

// Segment is one transcribed span of speech.
type Segment struct {
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
}

// Chapter marks where a topic starts in the media.
type Chapter struct {
	Timestamp string `json:"timestamp"`
	Topic     string `json:"topic"`
}

// Visual is a sampled frame position.
type Visual struct {
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
}

// QAItem is a generated question with its answer.
type QAItem struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Flashcard is a two-sided study card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// DeepAnalysis is the structured output of the analysis backend.
type DeepAnalysis struct {
	KeyConcepts       []string `json:"key_concepts"`
	ELI5              string   `json:"eli5"`
	FollowUpQuestions []string `json:"follow_up_questions"`
}

// AnalysisResult is the payload of a completed task.
// FullText is mandatory; every other field may be empty.
type AnalysisResult struct {
	Summary    string    `json:"summary"`
	Transcript []Segment `json:"transcript"`
	Chapters   []Chapter `json:"chapters"`
	Visuals    []Visual  `json:"visuals"`
	QA         []QAItem  `json:"qa"`
	FullText   string    `json:"full_text"`

	// Warnings lists the generation sub-steps that degraded to a default.
	Warnings []string `json:"warnings,omitempty"`
}

// MarshalJSON keeps empty collections as [] instead of null.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	type plain AnalysisResult
	out := plain(r)
	if out.Transcript == nil {
		out.Transcript = []Segment{}
	}
	if out.Chapters == nil {
		out.Chapters = []Chapter{}
	}
	if out.Visuals == nil {
		out.Visuals = []Visual{}
	}
	if out.QA == nil {
		out.QA = []QAItem{}
	}
	return json.Marshal(out)
}

// FormatTimestamp renders whole seconds as mm:ss.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
