package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/auilabs/aui/internal/config"
	"github.com/auilabs/aui/internal/httpapi"
	"github.com/auilabs/aui/internal/observability"
	"github.com/auilabs/aui/internal/progress"
	"github.com/auilabs/aui/internal/realtime"
)

type BuildResult struct {
	Config  config.Config
	API     *httpapi.Server
	Conns   *realtime.ConnRegistry
	Events  *realtime.EventRegistry
	Tracker *progress.Tracker
	Metrics *observability.Metrics

	// Cleanup should be called on shutdown to drop subscribers and release
	// external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	conns := realtime.NewConnRegistry(metrics)
	events := realtime.NewEventRegistry(cfg.SSEQueueCapacity, metrics)
	dispatcher := realtime.NewDispatcher(conns, events)
	tracker := progress.NewTracker(dispatcher, metrics)

	var store progress.Store
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pgStore, err := progress.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("progress archive init failed: %w", err)
		}
		store = pgStore
		tracker.SetStore(store)
	}

	api := httpapi.New(cfg, conns, events, tracker, metrics)

	cleanup := func() error {
		conns.Shutdown()
		events.Shutdown()
		tracker.Clear()
		if store != nil {
			if err := store.Close(); err != nil {
				return fmt.Errorf("close progress archive: %w", err)
			}
		}
		return nil
	}

	return &BuildResult{
		Config:  cfg,
		API:     api,
		Conns:   conns,
		Events:  events,
		Tracker: tracker,
		Metrics: metrics,
		Cleanup: cleanup,
	}, nil
}
