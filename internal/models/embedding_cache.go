package models

import "time"

// EmbeddingCacheEntry caches a job's description embedding so Layer 1
// does not recompute it on every cycle. Invalidated when DescriptionHash
// changes (the description was edited in the ATS).
type EmbeddingCacheEntry struct {
	JobID           string    `json:"job_id" boltholdKey:"JobID"`
	DescriptionHash string    `json:"description_hash"`
	Vector          []float32 `json:"vector"`
	UpdatedAt       time.Time `json:"updated_at"`
}
