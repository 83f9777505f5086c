package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/client/search"
	"github.com/pezzottify/catalog-engine/internal/config"
	"github.com/pezzottify/catalog-engine/internal/filestore"
	"github.com/pezzottify/catalog-engine/internal/logger"
	"github.com/pezzottify/catalog-engine/internal/manager/download"
	"github.com/pezzottify/catalog-engine/internal/manager/ingestion"
	"github.com/pezzottify/catalog-engine/internal/manager/watchdog"
	"github.com/pezzottify/catalog-engine/internal/notify"
	"github.com/pezzottify/catalog-engine/internal/probe"
	"github.com/pezzottify/catalog-engine/internal/scheduler"
	storecatalog "github.com/pezzottify/catalog-engine/internal/store/catalog"
	storeingestion "github.com/pezzottify/catalog-engine/internal/store/ingestion"
	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

// Serve opens every store, wires the download and ingestion managers, the
// watchdog, and the scheduler, then blocks until ctx is cancelled (the
// signal-aware context Execute builds). It shuts every collaborator down
// cleanly before returning.
func Serve(ctx context.Context, cfg *config.Config) error {
	queueStore, err := queue.Open(ctx, cfg.QueueDBPath)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer queueStore.Close() //nolint:errcheck // Best-effort close on shutdown.

	ingestStore, err := storeingestion.Open(ctx, cfg.IngestionDBPath)
	if err != nil {
		return fmt.Errorf("open ingestion store: %w", err)
	}
	defer ingestStore.Close() //nolint:errcheck // Best-effort close on shutdown.

	catalogStore, err := storecatalog.Open(ctx, cfg.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer catalogStore.Close() //nolint:errcheck // Best-effort close on shutdown.

	fileStore := filestore.New(cfg.ScratchDir, cfg.MediaDir, cfg.ParsedMaxFileSize)

	prober, err := probe.NewProber(cfg.TranscoderPath)
	if err != nil {
		return fmt.Errorf("init audio prober: %w", err)
	}

	catalogClient, err := catalog.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("init downloader client: %w", err)
	}

	searchClient, err := search.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("init search client: %w", err)
	}

	hub := notify.NewHub()
	notifier := notify.NewNotifier(hub)

	downloadMgr := download.New(queueStore, catalogClient, fileStore, notifier, cfg)
	ingestionMgr := ingestion.New(ingestStore, queueStore, fileStore, prober, catalogClient, searchClient, notifier, cfg)
	wd := watchdog.New(catalogStore, queueStore, fileStore)
	sched := scheduler.New(downloadMgr, ingestionMgr, wd, queueStore, ingestStore, cfg)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	httpServer := newNotifyServer(cfg.ListenAddr, hub)

	serveErr := make(chan error, 1)

	go func() {
		logger.Infof(ctx, "notifier listening on %s", cfg.ListenAddr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err

			return
		}

		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("notifier server: %w", err)
		}
	}

	shutdownCtx := context.Background()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf(ctx, "notifier server shutdown: %v", err)
	}

	return nil
}

// newNotifyServer builds the HTTP server that accepts WebSocket upgrades
// for the notifier hub (C9, spec §4.9), the only inbound surface this
// binary exposes — everything else is driven by the queue/scheduler.
func newNotifyServer(addr string, hub *notify.Hub) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			http.Error(w, "user_id is required", http.StatusBadRequest)

			return
		}

		if err := hub.Upgrade(w, r, userID); err != nil {
			logger.Errorf(r.Context(), "notifier: upgrade failed for user %s: %v", userID, err)
		}
	})

	//nolint:exhaustruct // Only Addr/Handler are meaningful for this internal listener.
	return &http.Server{Addr: addr, Handler: mux}
}
