package models

import (
	"time"
)

// Source identifies a catalog source by its reconciliation role.
type Source string

const (
	SourcePrimary   Source = "spotify"
	SourceCommunity Source = "musicbrainz"
	SourceFallback  Source = "deezer"
)

// Query identifies a release lookup request.
type Query struct {
	Artist  string `json:"artist_name"`
	Release string `json:"release_name"`
	Country string `json:"country_code,omitempty"`
}

// Track represents a single track on a release.
//
// ISRC is a pointer so that a missing code serializes as an explicit null
// rather than being omitted.
type Track struct {
	Position        int     `json:"position"`
	Title           string  `json:"title"`
	DurationSeconds *int    `json:"duration_seconds,omitempty"`
	ISRC            *string `json:"isrc"`
}

// CatalogResult is the structured release data returned by a single catalog.
type CatalogResult struct {
	Source      Source            `json:"source"`
	Artist      string            `json:"artist_name"`
	Title       string            `json:"release_name"`
	ReleaseDate string            `json:"release_date,omitempty"`
	Label       string            `json:"label,omitempty"`
	Tracks      []Track           `json:"tracks"`
	Genres      []string          `json:"genres,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
}

// CanonicalRecord is the merged, authoritative view of a release assembled
// from one or more catalog results.
type CanonicalRecord struct {
	Artist      string            `json:"artist_name"`
	Release     string            `json:"release_name"`
	ReleaseDate string            `json:"release_date,omitempty"`
	Label       string            `json:"label,omitempty"`
	Tracks      []Track           `json:"tracks"`
	Genres      []string          `json:"genres,omitempty"`
	SocialLinks map[string]string `json:"social_links,omitempty"`
	SourcesUsed []Source          `json:"sources_used"`
}

// JobState represents the lifecycle state of a reconciliation job.
// Transitions are monotonic: pending → running → completed or failed.
type JobState string

const (
	JobPending   JobState = "pending"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Error kinds attached to failed jobs.
const (
	ErrorKindNotFound         = "not_found"
	ErrorKindTimeout          = "timeout"
	ErrorKindCancelled        = "cancelled"
	ErrorKindCacheUnavailable = "cache_unavailable"
	ErrorKindInternal         = "internal"
)

// JobError is a stable, typed failure descriptor for a failed job.
type JobError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Job represents an asynchronous reconciliation request. Result and Error
// always serialize, so poll responses carry explicit nulls until the job
// reaches a terminal state.
type Job struct {
	ID          string           `json:"job_id"`
	Fingerprint string           `json:"-"`
	State       JobState         `json:"status"`
	Result      *CanonicalRecord `json:"data"`
	Error       *JobError        `json:"error"`
	CreatedAt   time.Time        `json:"created_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
