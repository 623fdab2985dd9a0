package models

import (
	"time"
)

type Step string

const (
	StepIdle        Step = "idle"
	StepIngesting   Step = "ingesting"
	StepReady       Step = "ready"
	StepInitiated   Step = "initiated"
	StepStarted     Step = "started"
	StepNormalizing Step = "normalizing"
	StepScoring     Step = "scoring"
	StepExporting   Step = "exporting"
	StepCompleted   Step = "completed"
	StepFailed      Step = "failed"
)

// Running reports whether a comparison run is in progress
func (s Step) Running() bool {
	switch s {
	case StepInitiated, StepStarted, StepNormalizing, StepScoring, StepExporting:
		return true
	}
	return false
}

const (
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunCancelled = "cancelled"
)

// HistoryRecord is the persisted shape of one similarity entry
type HistoryRecord struct {
	CorpusID   string    `bson:"corpusId" json:"corpusId"`
	RunID      string    `bson:"runId" json:"runId"`
	MainID     string    `bson:"mainId" json:"main_code_id"`
	SubID      string    `bson:"subId" json:"sub_code_id"`
	Similarity float64   `bson:"similarity" json:"similarity"`
	Label      string    `bson:"label" json:"label"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
}

// RunReport summarizes one comparison run over a corpus
type RunReport struct {
	RunID        string    `bson:"runId" json:"runId"`
	CorpusID     string    `bson:"corpusId" json:"corpusId"`
	Mode         string    `bson:"mode" json:"mode"`
	Target       string    `bson:"target,omitempty" json:"target,omitempty"`
	Threshold    float64   `bson:"threshold" json:"threshold"`
	Status       string    `bson:"status" json:"status"`
	Files        []string  `bson:"files" json:"files"`
	Unreadable   []string  `bson:"unreadable" json:"unreadable"`
	PairCount    int       `bson:"pair_count" json:"pair_count"`
	FailedPairs  int       `bson:"failed_pairs" json:"failed_pairs"`
	SuspectCount int       `bson:"suspect_count" json:"suspect_count"`
	ReportsDir   string    `bson:"reports_dir,omitempty" json:"reports_dir,omitempty"`
	Error        string    `bson:"error,omitempty" json:"error,omitempty"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

// ComputeRequest represents a request to run a comparison over a corpus
type ComputeRequest struct {
	CorpusID  string   `json:"corpusId" binding:"required"`
	Mode      string   `json:"mode"`
	Target    string   `json:"target"`
	Threshold *float64 `json:"threshold"`
}

// ComputeResponse represents the response from compute endpoint
type ComputeResponse struct {
	Step     Step   `json:"step"`
	CorpusID string `json:"corpusId"`
	RunID    string `json:"runId"`
}

// SuspectResponse is one flagged pair as returned to the results view
type SuspectResponse struct {
	FileA      string  `json:"fileA"`
	FileB      string  `json:"fileB"`
	Similarity float64 `json:"similarity"`
	Percent    string  `json:"percent"`
}

// RankingResponse is one row of a one-to-many result
type RankingResponse struct {
	File       string  `json:"file"`
	Similarity float64 `json:"similarity"`
	Percent    string  `json:"percent"`
	Label      string  `json:"label"`
}
