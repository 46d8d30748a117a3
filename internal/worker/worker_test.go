package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meodash/meorank/internal/extract"
	pubmemory "github.com/meodash/meorank/internal/publisher/memory"
	"github.com/meodash/meorank/internal/rank"
	"github.com/meodash/meorank/internal/store/memory"
)

type searchResponse struct {
	page rank.SearchPage
	err  error
}

// scriptedDriver replays canned search responses in order, repeating the
// last one once the script runs out.
type scriptedDriver struct {
	mu        sync.Mutex
	responses []searchResponse
	calls     int
}

func (d *scriptedDriver) Search(_ context.Context, _ int64, query string) (rank.SearchPage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	idx := d.calls
	if idx >= len(d.responses) {
		idx = len(d.responses) - 1
	}
	d.calls++
	resp := d.responses[idx]
	resp.page.Query = query
	return resp.page, resp.err
}

func resultsPage(entries ...string) rank.SearchPage {
	html := `<html><body><div role="feed">`
	for _, e := range entries {
		html += e
	}
	html += `</div></body></html>`
	return rank.SearchPage{HTML: []byte(html), Duration: 10 * time.Millisecond}
}

func organicEntry(name string) string {
	return fmt.Sprintf(
		`<div role="article" aria-label=%q><a href="/maps/place/x">%s</a></div>`,
		name, name,
	)
}

func sponsoredEntry(name string) string {
	return fmt.Sprintf(
		`<div role="article" aria-label=%q><span>Sponsored</span><a href="/maps/place/x">%s</a></div>`,
		name, name,
	)
}

type harness struct {
	worker    *Worker
	store     *memory.JobStore
	driver    *scriptedDriver
	publisher *pubmemory.Publisher
	job       *rank.ClaimedJob
}

// newHarness enqueues and claims one job for the Tokyo Sushi Bar shop so
// tests can drive processJob directly.
func newHarness(t *testing.T, driver *scriptedDriver) *harness {
	t.Helper()

	store := memory.NewJobStore()
	store.RegisterShop(11, "Tokyo Sushi Bar")
	store.RegisterKeyword(42, "sushi shibuya")

	ctx := context.Background()
	_, _, err := store.Enqueue(ctx, 11, 42,
		time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), rank.Requester{Type: "operator"})
	require.NoError(t, err)

	job, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	publisher := pubmemory.New()
	w := New(
		store, store, driver, extract.NewEngine(nil),
		NewRetryPolicy(3, time.Millisecond, 4*time.Millisecond),
		publisher, nil,
		Config{IdleInterval: time.Millisecond, EventTopic: "rank-observations"},
		nil,
	)
	return &harness{worker: w, store: store, driver: driver, publisher: publisher, job: job}
}

func (h *harness) storedJob(t *testing.T) rank.CheckJob {
	t.Helper()
	job, err := h.store.GetJob(context.Background(), h.job.ID)
	require.NoError(t, err)
	return job
}

func TestProcessJobPersistsRankAmongOrganicOnly(t *testing.T) {
	t.Parallel()

	// Two ads above the shop: its organic rank is 1, not 3.
	driver := &scriptedDriver{responses: []searchResponse{{
		page: resultsPage(
			sponsoredEntry("Paid Sushi Palace"),
			sponsoredEntry("Promoted Izakaya"),
			organicEntry("Tokyo Sushi Bar Shibuya"),
			organicEntry("Ramen Alley"),
		),
	}}}
	h := newHarness(t, driver)

	h.worker.processJob(context.Background(), h.job)

	assert.Equal(t, rank.JobStatusSuccess, h.storedJob(t).Status)
	pos, ok := h.store.Observation(42, h.job.TargetDate)
	require.True(t, ok)
	require.NotNil(t, pos)
	assert.Equal(t, 1, *pos)
	assert.False(t, h.worker.Busy())

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "rank-observations", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, h.job.ID, payload["job_id"])
}

func TestProcessJobShopNotFoundIsSuccessWithNilPosition(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{responses: []searchResponse{{
		page: resultsPage(
			organicEntry("Ramen Alley"),
			organicEntry("Curry Corner"),
		),
	}}}
	h := newHarness(t, driver)

	h.worker.processJob(context.Background(), h.job)

	assert.Equal(t, rank.JobStatusSuccess, h.storedJob(t).Status)
	pos, ok := h.store.Observation(42, h.job.TargetDate)
	require.True(t, ok)
	assert.Nil(t, pos)
}

func TestProcessJobZeroCandidatesFailsDistinctly(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{responses: []searchResponse{{
		page: rank.SearchPage{HTML: []byte(`<html><body><p>loading</p></body></html>`)},
	}}}
	h := newHarness(t, driver)

	h.worker.processJob(context.Background(), h.job)

	stored := h.storedJob(t)
	assert.Equal(t, rank.JobStatusFailed, stored.Status)
	assert.Equal(t, "no results extracted from page", stored.ErrorText)
	_, ok := h.store.Observation(42, h.job.TargetDate)
	assert.False(t, ok)
}

func TestProcessJobBlockedIsTerminalWithoutRetry(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{responses: []searchResponse{{
		err: &rank.BlockedError{Reason: "captcha interstitial", SnapshotURI: "file:///snap/x.html"},
	}}}
	h := newHarness(t, driver)

	h.worker.processJob(context.Background(), h.job)

	stored := h.storedJob(t)
	assert.Equal(t, rank.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorText, "blocked by anti-bot challenge: captcha interstitial")
	assert.Contains(t, stored.ErrorText, "file:///snap/x.html")
	assert.Equal(t, 1, driver.calls)
	assert.Empty(t, h.publisher.Messages())
}

func TestProcessJobRetriesTransientSearchErrors(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{responses: []searchResponse{
		{err: errors.New("net::ERR_CONNECTION_RESET")},
		{err: errors.New("net::ERR_CONNECTION_RESET")},
		{page: resultsPage(organicEntry("Tokyo Sushi Bar Shibuya"))},
	}}
	h := newHarness(t, driver)

	h.worker.processJob(context.Background(), h.job)

	assert.Equal(t, rank.JobStatusSuccess, h.storedJob(t).Status)
	assert.Equal(t, 3, driver.calls)
}

func TestProcessJobFailsAfterRetryBudgetExhausted(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{responses: []searchResponse{
		{err: errors.New("net::ERR_CONNECTION_RESET")},
	}}
	h := newHarness(t, driver)

	h.worker.processJob(context.Background(), h.job)

	stored := h.storedJob(t)
	assert.Equal(t, rank.JobStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorText, "search failed:")
	assert.Equal(t, 3, driver.calls)
}

func TestRunStopsWhenContextFinishes(t *testing.T) {
	t.Parallel()

	driver := &scriptedDriver{responses: []searchResponse{{
		page: resultsPage(organicEntry("Tokyo Sushi Bar Shibuya")),
	}}}
	h := newHarness(t, driver)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		h.worker.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker loop did not stop on context cancellation")
	}
}
