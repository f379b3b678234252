package models

import "time"

// VettingRunStatus is the lifecycle state of a per-candidate-per-cycle run.
type VettingRunStatus string

const (
	VettingRunPending   VettingRunStatus = "pending"
	VettingRunRunning   VettingRunStatus = "running"
	VettingRunCompleted VettingRunStatus = "completed"
	VettingRunFailed    VettingRunStatus = "failed"
)

// VettingRun records one candidate's pass through the scoring pipeline
// during one vetting cycle.
type VettingRun struct {
	ID            string           `json:"id" boltholdKey:"ID"`
	CandidateID   string           `json:"candidate_id" boltholdIndex:"CandidateID"`
	StartedAt     time.Time        `json:"started_at"`
	FinishedAt    *time.Time       `json:"finished_at"`
	HighestScore  int              `json:"highest_score"`
	Qualified     bool             `json:"qualified"`
	NoteID        string           `json:"note_id_or_null"`
	Error         string           `json:"error_or_null"`
	Status        VettingRunStatus `json:"status" boltholdIndex:"Status"`
}

// JobMatch is the per-(candidate,job) scoring result produced by layer 2
// or layer 3.
type LayerUsed string

const (
	LayerL2 LayerUsed = "L2"
	LayerL3 LayerUsed = "L3"
)

type YearsAnalysisEntry struct {
	RequiredYears    float64 `json:"required_years"`
	EstimatedYears   float64 `json:"estimated_years"`
	MeetsRequirement bool    `json:"meets_requirement"`
}

type JobMatch struct {
	ID            string                        `json:"id" boltholdKey:"ID"`
	VettingRunID  string                        `json:"vetting_run_id" boltholdIndex:"VettingRunID"`
	JobID         string                        `json:"job_id" boltholdIndex:"JobID"`
	Score         int                           `json:"score"`
	Summary       string                        `json:"summary"`
	Skills        []string                      `json:"skills"`
	Experience    string                        `json:"experience"`
	Gaps          []string                      `json:"gaps"`
	YearsAnalysis map[string]YearsAnalysisEntry  `json:"years_analysis_json"`
	LayerUsed     LayerUsed                      `json:"layer_used"`
	IsAppliedJob  bool                           `json:"is_applied_job"`
	IsQualified   bool                           `json:"is_qualified"`
	Error         string                         `json:"error,omitempty"`
	CreatedAt     time.Time                      `json:"created_at"`
}
