package models

import "time"

// WorkType describes where a job is performed.
type WorkType string

const (
	WorkTypeOnSite WorkType = "on_site"
	WorkTypeHybrid WorkType = "hybrid"
	WorkTypeRemote WorkType = "remote"
)

// Location is a job's free-form and normalized address.
type Location struct {
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// Owner identifies the recruiter or hiring manager attached to a job.
type Owner struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Job is the ATS's canonical job record. It is observed, never mutated
// locally: every field is refreshed wholesale from the ATS on each pull.
type Job struct {
	JobID           string    `json:"job_id" boltholdKey:"JobID" validate:"required"`
	Title           string    `json:"title" validate:"required"`
	DescriptionHTML string    `json:"description_html"`
	Address1        string    `json:"address1"`
	Location        Location  `json:"location"`
	WorkType        WorkType  `json:"work_type"`
	Owner           Owner     `json:"owner"`
	PostedAt        time.Time `json:"posted_at"`
	Status          string    `json:"status"`
	TearsheetID     string    `json:"tearsheet_id" boltholdIndex:"TearsheetID"`
}

// IsOpen reports whether the ATS considers the job open for applications.
func (j *Job) IsOpen() bool {
	return j.Status == "open" || j.Status == "Open"
}
