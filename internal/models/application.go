package models

import "time"

// ApplicationStatus tracks an inbound application through the vetting
// pipeline.
type ApplicationStatus string

const (
	ApplicationReceived ApplicationStatus = "received"
	ApplicationProcessed ApplicationStatus = "processed"
)

// Application is created by the inbound mail sink (or a fallback ATS
// search) and is the primary discovery signal for the applicant detector.
type Application struct {
	MessageID   string            `json:"message_id" boltholdKey:"MessageID"`
	CandidateID string            `json:"candidate_id" boltholdIndex:"CandidateID"`
	AppliedJobID string           `json:"applied_job_id"`
	ReceivedAt  time.Time         `json:"received_at"`
	Status      ApplicationStatus `json:"status"`
	VettedAt    *time.Time        `json:"vetted_at"`
}

// NeedsVetting reports whether this application has not yet been fully
// vetted by a completed cycle.
func (a *Application) NeedsVetting() bool {
	return a.VettedAt == nil && a.Status == ApplicationProcessed
}
