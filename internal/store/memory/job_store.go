// Package memory provides an in-memory job store for development/testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meodash/meorank/internal/rank"
)

// JobStore implements the enqueue, claim and result-sink contracts over a
// mutex-guarded map. It mirrors the claim exclusivity guarantee of the
// Postgres store at the interface level.
type JobStore struct {
	mu           sync.Mutex
	nextID       int64
	jobs         map[int64]*rank.CheckJob
	shopNames    map[int64]string
	keywords     map[int64]string
	observations map[obsKey]*int
}

type obsKey struct {
	keywordID int64
	checkedAt string
}

// NewJobStore constructs an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:         make(map[int64]*rank.CheckJob),
		shopNames:    make(map[int64]string),
		keywords:     make(map[int64]string),
		observations: make(map[obsKey]*int),
	}
}

// RegisterShop seeds shop display data used when claiming.
func (s *JobStore) RegisterShop(shopID int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shopNames[shopID] = name
}

// RegisterKeyword seeds keyword text used when claiming.
func (s *JobStore) RegisterKeyword(keywordID int64, keyword string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords[keywordID] = keyword
}

// Enqueue upserts a job; an existing queued or running job for the same
// (shop, keyword, date) is updated in place.
func (s *JobStore) Enqueue(
	_ context.Context,
	shopID, keywordID int64,
	date time.Time,
	by rank.Requester,
) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.ShopID == shopID && job.KeywordID == keywordID &&
			sameDate(job.TargetDate, date) &&
			(job.Status == rank.JobStatusQueued || job.Status == rank.JobStatusRunning) {
			job.RequestedBy = by
			return job.ID, false, nil
		}
	}

	s.nextID++
	job := &rank.CheckJob{
		ID:          s.nextID,
		ShopID:      shopID,
		KeywordID:   keywordID,
		TargetDate:  date,
		Status:      rank.JobStatusQueued,
		RequestedBy: by,
		CreatedAt:   time.Now().UTC(),
	}
	s.jobs[job.ID] = job
	return job.ID, true, nil
}

// EnqueueShopKeywords upserts one job per registered keyword of the shop.
func (s *JobStore) EnqueueShopKeywords(ctx context.Context, req rank.EnqueueRequest) (rank.EnqueueResult, error) {
	s.mu.Lock()
	var keywordIDs []int64
	for id := range s.keywords {
		keywordIDs = append(keywordIDs, id)
	}
	s.mu.Unlock()
	sort.Slice(keywordIDs, func(i, j int) bool { return keywordIDs[i] < keywordIDs[j] })

	var result rank.EnqueueResult
	for _, kwID := range keywordIDs {
		_, created, err := s.Enqueue(ctx, req.ShopID, kwID, req.TargetDate, req.RequestedBy)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		} else {
			result.Existing++
		}
	}
	return result, nil
}

// ClaimNext hands out the oldest queued job and marks it running. The whole
// operation holds the store lock, so no two callers ever receive the same
// job id.
func (s *JobStore) ClaimNext(_ context.Context) (*rank.ClaimedJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *rank.CheckJob
	for _, job := range s.jobs {
		if job.Status != rank.JobStatusQueued {
			continue
		}
		if oldest == nil || job.ID < oldest.ID {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	oldest.Status = rank.JobStatusRunning
	oldest.StartedAt = &now

	return &rank.ClaimedJob{
		ID:         oldest.ID,
		ShopID:     oldest.ShopID,
		KeywordID:  oldest.KeywordID,
		TargetDate: oldest.TargetDate,
		ShopName:   s.shopNames[oldest.ShopID],
		Keyword:    s.keywords[oldest.KeywordID],
	}, nil
}

// RecordRank upserts the observation and flips the job to success.
func (s *JobStore) RecordRank(_ context.Context, job *rank.ClaimedJob, position *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("job %d not found", job.ID)
	}
	s.observations[obsKey{job.KeywordID, dateKey(job.TargetDate)}] = position
	now := time.Now().UTC()
	stored.Status = rank.JobStatusSuccess
	stored.FinishedAt = &now
	stored.ErrorText = ""
	return nil
}

// RecordFailure flips the job to failed with the given reason.
func (s *JobStore) RecordFailure(_ context.Context, jobID int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %d not found", jobID)
	}
	now := time.Now().UTC()
	stored.Status = rank.JobStatusFailed
	stored.FinishedAt = &now
	stored.ErrorText = reason
	return nil
}

// GetJob fetches a job copy by id.
func (s *JobStore) GetJob(_ context.Context, jobID int64) (rank.CheckJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return rank.CheckJob{}, fmt.Errorf("job %d not found", jobID)
	}
	return *job, nil
}

// Observation returns the stored position for a keyword and date, and
// whether one exists.
func (s *JobStore) Observation(keywordID int64, date time.Time) (*int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.observations[obsKey{keywordID, dateKey(date)}]
	return pos, ok
}

// QueueDepth counts queued jobs.
func (s *JobStore) QueueDepth(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := 0
	for _, job := range s.jobs {
		if job.Status == rank.JobStatusQueued {
			depth++
		}
	}
	return depth, nil
}

func sameDate(a, b time.Time) bool {
	return dateKey(a) == dateKey(b)
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
