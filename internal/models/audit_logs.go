package models

import "time"

// FilterLogEntry is an audit-only record of a Layer 1 evaluation.
type FilterLogEntry struct {
	ID             string    `json:"id" boltholdKey:"ID"`
	CandidateID    string    `json:"candidate_id" boltholdIndex:"CandidateID"`
	JobID          string    `json:"job_id"`
	Similarity     float64   `json:"similarity"`
	ThresholdUsed  float64   `json:"threshold_used"`
	Filtered       bool      `json:"filtered_bool"`
	Safeguard      bool      `json:"safeguard_bool"`
	CreatedAt      time.Time `json:"created_at"`
}

// EscalationLogEntry is an audit-only record of a Layer 3 evaluation,
// written whenever escalation is considered, even if it is dormant.
type EscalationLogEntry struct {
	ID              string    `json:"id" boltholdKey:"ID"`
	CandidateID     string    `json:"candidate_id" boltholdIndex:"CandidateID"`
	JobID           string    `json:"job_id"`
	L2Score         int       `json:"l2_score"`
	L3Score         int       `json:"l3_score"`
	Delta           int       `json:"delta"`
	CrossedThreshold bool     `json:"crossed_threshold"`
	CreatedAt       time.Time `json:"created_at"`
}
