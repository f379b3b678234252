package models

// Candidate mirrors the ATS candidate record. Source of truth is the ATS;
// this struct is a read-through projection, never persisted as its own
// collection.
type Candidate struct {
	CandidateID       string `json:"candidate_id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	ResumeFilePointer string `json:"resume_file_pointer"`
	OwnerID           string `json:"owner_id"`
	CreatedAt         string `json:"created_at"`
}
