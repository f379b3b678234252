package models

import "time"

// ResumeCacheEntry is a content-addressed cache of extracted resume text,
// keyed by the SHA-256 of the raw downloaded bytes.
type ResumeCacheEntry struct {
	ContentHash   string    `json:"content_hash" boltholdKey:"ContentHash"`
	RawText       string    `json:"raw_text"`
	FormattedHTML string    `json:"formatted_html"`
	HitCount      int       `json:"hit_count"`
	LastAccessed  time.Time `json:"last_accessed"`
	CreatedAt     time.Time `json:"created_at"`
}
