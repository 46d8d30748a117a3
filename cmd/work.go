package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meodash/meorank/internal/browser"
	"github.com/meodash/meorank/internal/clock/system"
	"github.com/meodash/meorank/internal/extract"
	"github.com/meodash/meorank/internal/hash/sha256"
	"github.com/meodash/meorank/internal/health"
	"github.com/meodash/meorank/internal/metrics"
	pubsubpublisher "github.com/meodash/meorank/internal/publisher/pubsub"
	"github.com/meodash/meorank/internal/rank"
	gcssnapshot "github.com/meodash/meorank/internal/snapshot/gcs"
	localsnapshot "github.com/meodash/meorank/internal/snapshot/local"
	"github.com/meodash/meorank/internal/store/postgres"
	"github.com/meodash/meorank/internal/worker"
)

func newWorkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Run the rank check worker loop",
		Long: `work runs the long-lived worker process: it polls the job queue,
processes one claimed job at a time end to end, and serves health and
metrics endpoints. Run multiple processes for parallelism.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWork(cmd.Context())
		},
	}
}

func runWork(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	store, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(cfg.DB.LifetimeMins) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("init job store: %w", err)
	}
	defer store.Close()

	snapshots, err := buildSnapshotStore(ctx)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := buildPublisher(ctx)
	if err != nil {
		return err
	}
	defer closePublisher()

	driver, err := browser.New(browser.Config{
		Headless:          cfg.Browser.Headless,
		NavigationTimeout: cfg.NavTimeout(),
		ScrollIterations:  cfg.Browser.ScrollIterations,
		ScrollSettle:      cfg.ScrollSettle(),
		SearchBaseURL:     cfg.Browser.SearchBaseURL,
		UserAgent:         cfg.Browser.UserAgent,
		Language:          cfg.Browser.Language,
		SearchesPerMinute: cfg.Browser.SearchesPerMinute,
		SnapshotPrefix:    cfg.Snapshot.Prefix,
	}, browser.NewBlockDetector(nil, nil), snapshots, sha256.New(), logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("init browser driver: %w", err)
	}
	defer driver.Close()

	w := worker.New(
		store,
		store,
		driver,
		extract.NewEngine(logger.Named("extract")),
		worker.NewRetryPolicy(
			cfg.Retry.MaxAttempts,
			time.Duration(cfg.Retry.BaseDelayMs)*time.Millisecond,
			time.Duration(cfg.Retry.MaxDelayMs)*time.Millisecond,
		),
		publisher,
		system.New(),
		worker.Config{
			IdleInterval: cfg.IdlePoll(),
			EventTopic:   cfg.PubSub.TopicName,
		},
		logger.Named("worker"),
	)

	healthServer := health.NewServer(health.Deps{
		Ping:       store.Ping,
		QueueDepth: store.QueueDepth,
		Busy:       w.Busy,
	}, logger.Named("health"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           healthServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("worker started", zap.Duration("idle_poll", cfg.IdlePoll()))
		w.Run(groupCtx)
		return nil
	})

	group.Go(func() error {
		logger.Info("health server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("health server shutdown error", zap.Error(err))
		}
		return nil
	})

	err = group.Wait()
	logger.Info("shutdown complete")
	return err
}

func buildSnapshotStore(ctx context.Context) (rank.SnapshotStore, error) {
	switch cfg.Snapshot.Provider {
	case "local":
		store, err := localsnapshot.New(cfg.Snapshot.BaseDir)
		if err != nil {
			return nil, fmt.Errorf("init local snapshot store: %w", err)
		}
		return store, nil
	case "gcs":
		store, err := gcssnapshot.New(ctx, cfg.Snapshot.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("init gcs snapshot store: %w", err)
		}
		return store, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown snapshot provider: %s", cfg.Snapshot.Provider)
	}
}

func buildPublisher(ctx context.Context) (rank.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return nil, func() {}, nil
	}
	pub, err := pubsubpublisher.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub publisher: %w", err)
	}
	return pub, func() {
		if err := pub.Close(); err != nil {
			logger.Warn("close publisher failed", zap.Error(err))
		}
	}, nil
}
