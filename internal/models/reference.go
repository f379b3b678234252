package models

import "time"

// JobReference is the durable job_id -> reference_token mapping.
//
// Once assigned, ReferenceToken for a JobID is never rewritten by any
// automated path. Only OperatorRefresh may rotate it.
type JobReference struct {
	JobID          string    `json:"job_id" boltholdKey:"JobID"`
	ReferenceToken string    `json:"reference_token" boltholdIndex:"ReferenceToken"`
	LastUpdated    time.Time `json:"last_updated"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}
