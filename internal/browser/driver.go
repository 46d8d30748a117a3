// Package browser drives a headless browser session over map-search results.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/meodash/meorank/internal/rank"
)

// Config controls the behavior of the search driver.
type Config struct {
	Headless          bool
	NavigationTimeout time.Duration
	ScrollIterations  int
	ScrollSettle      time.Duration
	SearchBaseURL     string
	UserAgent         string
	Language          string
	SearchesPerMinute float64
	SnapshotPrefix    string
}

// Driver implements rank.SearchDriver using chromedp. Each Search call owns
// one fresh browser session, torn down on every exit path.
type Driver struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	limiter     *rate.Limiter
	detector    *BlockDetector
	snapshots   rank.SnapshotStore
	hasher      rank.Hasher
	logger      *zap.Logger
}

// scrollScript advances the lazy-loaded results feed by one viewport-ish
// step. Falls back to the window when the feed container is absent.
const scrollScript = `(() => {
	const feed = document.querySelector('div[role="feed"]');
	if (feed) {
		feed.scrollBy(0, feed.scrollHeight);
	} else {
		window.scrollBy(0, document.body.scrollHeight);
	}
})()`

// New creates a Driver backed by a shared chromedp exec allocator.
func New(
	cfg Config,
	detector *BlockDetector,
	snapshots rank.SnapshotStore,
	hasher rank.Hasher,
	logger *zap.Logger,
) (*Driver, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ScrollIterations < 0 {
		return nil, fmt.Errorf("scroll iterations must be >= 0")
	}
	if cfg.SearchBaseURL == "" {
		cfg.SearchBaseURL = "https://www.google.com/maps/search/"
	}
	if cfg.SnapshotPrefix == "" {
		cfg.SnapshotPrefix = "blocked"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = NewBlockDetector(nil, nil)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.Language != "" {
		opts = append(opts, chromedp.Flag("lang", cfg.Language))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	limit := rate.Inf
	if cfg.SearchesPerMinute > 0 {
		limit = rate.Limit(cfg.SearchesPerMinute / 60)
	}

	return &Driver{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		limiter:     rate.NewLimiter(limit, 1),
		detector:    detector,
		snapshots:   snapshots,
		hasher:      hasher,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context, killing any remaining browser.
func (d *Driver) Close() {
	d.allocCancel()
}

// SearchURL builds the results URL for a keyword query.
func (d *Driver) SearchURL(query string) string {
	u := d.cfg.SearchBaseURL + url.PathEscape(query)
	if d.cfg.Language != "" {
		u += "?hl=" + url.QueryEscape(d.cfg.Language)
	}
	return u
}

// Search renders the results surface for the query: navigate, scroll the
// feed a bounded number of times to force lazy listings into the DOM, then
// capture the DOM. A challenge page surfaces as *rank.BlockedError after a
// diagnostic snapshot is written.
func (d *Driver) Search(ctx context.Context, jobID int64, query string) (rank.SearchPage, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return rank.SearchPage{}, fmt.Errorf("search pacing wait: %w", err)
	}

	// Fresh browser per job; cancelled on every exit path.
	tabCtx, tabCancel := chromedp.NewContext(d.allocator)
	defer tabCancel()

	taskCtx, taskCancel := context.WithTimeout(tabCtx, d.cfg.NavigationTimeout)
	defer taskCancel()

	stopForward := forwardCancel(ctx, taskCancel)
	defer stopForward()

	target := d.SearchURL(query)
	start := time.Now()

	var html string
	actions := []chromedp.Action{network.Enable()}
	if d.cfg.Language != "" {
		actions = append(actions,
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": d.cfg.Language}))
	}
	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	for i := 0; i < d.cfg.ScrollIterations; i++ {
		actions = append(actions,
			chromedp.Evaluate(scrollScript, nil),
			chromedp.Sleep(d.cfg.ScrollSettle),
		)
	}
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return rank.SearchPage{}, fmt.Errorf("navigate %q: %w", target, err)
	}

	page := rank.SearchPage{
		Query:    query,
		URL:      target,
		HTML:     []byte(html),
		Duration: time.Since(start),
	}

	if blocked, signal := d.detector.Detect(page.HTML); blocked {
		uri := d.captureSnapshot(taskCtx, jobID, page.HTML)
		d.logger.Warn("anti-bot challenge detected",
			zap.Int64("job_id", jobID),
			zap.String("signal", signal),
			zap.String("snapshot_uri", uri),
		)
		return rank.SearchPage{}, &rank.BlockedError{Reason: signal, SnapshotURI: uri}
	}

	return page, nil
}

// captureSnapshot saves the challenge page HTML plus a screenshot for
// offline inspection. Snapshot failures are logged, never fatal: the job
// outcome is already decided.
func (d *Driver) captureSnapshot(taskCtx context.Context, jobID int64, html []byte) string {
	if d.snapshots == nil {
		return ""
	}

	name := uuid.NewString()
	if d.hasher != nil {
		if digest, err := d.hasher.Hash(html); err == nil && len(digest) >= 12 {
			name = name + "-" + digest[:12]
		}
	}
	base := fmt.Sprintf("%s/%d/%s", d.cfg.SnapshotPrefix, jobID, name)

	putCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	uri, err := d.snapshots.PutObject(putCtx, base+".html", "text/html; charset=utf-8", html)
	if err != nil {
		d.logger.Error("snapshot html write failed", zap.Int64("job_id", jobID), zap.Error(err))
		return ""
	}

	var shot []byte
	if err := chromedp.Run(taskCtx, chromedp.CaptureScreenshot(&shot)); err == nil && len(shot) > 0 {
		if _, err := d.snapshots.PutObject(putCtx, base+".png", "image/png", shot); err != nil {
			d.logger.Error("snapshot screenshot write failed", zap.Int64("job_id", jobID), zap.Error(err))
		}
	}
	return uri
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
