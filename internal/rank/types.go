// Package rank defines core types shared across the rank acquisition subsystems.
package rank

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a rank check job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// Requester identifies who asked for a rank check.
type Requester struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

// CheckJob is the metadata persisted for each rank check request.
type CheckJob struct {
	ID          int64      `json:"id"`
	ShopID      int64      `json:"shop_id"`
	KeywordID   int64      `json:"meo_keyword_id"`
	TargetDate  time.Time  `json:"target_date"`
	Status      JobStatus  `json:"status"`
	RequestedBy Requester  `json:"requested_by"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	ErrorText   string     `json:"error_message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ClaimedJob is a CheckJob joined with the display data a worker needs to
// run the search: the shop's listing name (the match target) and the keyword
// text (the search query).
type ClaimedJob struct {
	ID         int64
	ShopID     int64
	KeywordID  int64
	TargetDate time.Time
	ShopName   string
	Keyword    string
}

// Observation is the idempotent daily record of a keyword's organic position.
// Position is nil when the shop was not found within the scanned window.
type Observation struct {
	KeywordID int64     `json:"meo_keyword_id"`
	Position  *int      `json:"position"`
	CheckedAt time.Time `json:"checked_at"`
}

// ListingCandidate is one listing extracted from a rendered results page,
// in raw DOM order. It lives only for the duration of one extraction pass.
type ListingCandidate struct {
	Position  int
	Name      string
	TargetURL string
	Sponsored bool
	Signal    string
}

// Extraction is the output of one rank extraction pass.
type Extraction struct {
	// OrganicRank is the 1-based position among organic listings, nil if the
	// target never appeared. Only this rank is persisted.
	OrganicRank *int
	// NaiveRank is the 1-based position over the unfiltered candidate list,
	// reported for observability only.
	NaiveRank      *int
	AllCount       int
	OrganicCount   int
	SponsoredCount int
}

// SearchPage is the rendered results surface returned by a SearchDriver.
type SearchPage struct {
	Query    string
	URL      string
	HTML     []byte
	Duration time.Duration
}

// EnqueueRequest asks for one job per keyword of a shop on a target date.
type EnqueueRequest struct {
	ShopID      int64
	TargetDate  time.Time
	RequestedBy Requester
}

// EnqueueResult reports how many jobs were newly created versus already
// queued or running for the same (shop, keyword, date).
type EnqueueResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

// ErrNoCandidates indicates the extraction pass found no listings at all.
// This is a page-structure or navigation problem, not a zero-results search,
// and maps to a failed job.
var ErrNoCandidates = errors.New("no listing candidates extracted")

// BlockedError reports an anti-bot challenge in place of real results.
// It is terminal for the job; a fresh enqueue is required to try again.
type BlockedError struct {
	Reason      string
	SnapshotURI string
}

func (e *BlockedError) Error() string {
	if e.SnapshotURI == "" {
		return fmt.Sprintf("blocked by anti-bot challenge: %s", e.Reason)
	}
	return fmt.Sprintf("blocked by anti-bot challenge: %s (snapshot %s)", e.Reason, e.SnapshotURI)
}

// IsBlocked reports whether err carries a BlockedError.
func IsBlocked(err error) bool {
	var be *BlockedError
	return errors.As(err, &be)
}
