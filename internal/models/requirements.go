package models

import "time"

// JobRequirements holds the active scoring requirements for a job.
//
// A sync-with-active-jobs operation may remove orphaned rows but must
// never modify CustomOverride or Threshold.
type JobRequirements struct {
	JobID          string    `json:"job_id" boltholdKey:"JobID"`
	AIExtracted    string    `json:"ai_extracted"`
	CustomOverride string    `json:"custom_override"`
	Threshold      int       `json:"threshold"`
	LastExtraction time.Time `json:"last_extraction"`
}

// Active returns the requirements text actually used for scoring:
// CustomOverride when present, otherwise AIExtracted.
func (r *JobRequirements) Active() string {
	if r.CustomOverride != "" {
		return r.CustomOverride
	}
	return r.AIExtracted
}

// EffectiveThreshold returns the job's configured threshold, or the
// supplied global default when unset.
func (r *JobRequirements) EffectiveThreshold(globalDefault int) int {
	if r.Threshold > 0 {
		return r.Threshold
	}
	return globalDefault
}
