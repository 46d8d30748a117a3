package rank

import (
	"context"
	"time"
)

// Enqueuer upserts rank check jobs. Safe to call repeatedly for the same
// date: an already queued or running (shop, keyword, date) job is updated
// in place, never duplicated.
type Enqueuer interface {
	EnqueueShopKeywords(ctx context.Context, req EnqueueRequest) (EnqueueResult, error)
	Enqueue(ctx context.Context, shopID, keywordID int64, date time.Time, by Requester) (jobID int64, created bool, err error)
}

// Claimer hands exactly one queued job to exactly one caller. A nil job
// with a nil error means the queue is empty. No two concurrent ClaimNext
// calls ever return the same job id.
type Claimer interface {
	ClaimNext(ctx context.Context) (*ClaimedJob, error)
}

// ResultSink terminates a claimed job. RecordRank upserts the observation
// and flips the job to success in one transaction; RecordFailure flips the
// job to failed with a human-readable message.
type ResultSink interface {
	RecordRank(ctx context.Context, job *ClaimedJob, position *int) error
	RecordFailure(ctx context.Context, jobID int64, reason string) error
}

// SearchDriver renders the map-search results surface for a keyword.
// Implementations own one browser session per call and must release it on
// every exit path. A detected anti-bot challenge surfaces as *BlockedError.
type SearchDriver interface {
	Search(ctx context.Context, jobID int64, query string) (SearchPage, error)
}

// Extractor computes the organic rank of a target shop over rendered HTML.
type Extractor interface {
	Extract(html []byte, target string) (Extraction, error)
}

// SnapshotStore persists diagnostic artifacts (blocked-page HTML and
// screenshots) and returns a URI for offline inspection.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher computes digests for snapshot naming and integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}
