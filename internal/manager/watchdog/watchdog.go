// Package watchdog implements the missing-files watchdog (C8, spec §4.8):
// a scan over the local catalog store's tracks, album images, and artist
// images that enqueues a Background-priority repair download for anything
// whose expected file is absent on disk, skipping anything that already has
// a download queue item in any status.
package watchdog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/filestore"
	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/store/catalog"
	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

// Mode selects whether a scan enqueues repairs (Actual) or only reports
// what it would do (DryRun).
type Mode int

const (
	// DryRun reports missing items without enqueueing anything.
	DryRun Mode = iota
	// Actual enqueues a repair QueueItem for each missing item not already queued.
	Actual
)

// MissingItem is one entry in a Report's missing-ids list, carrying enough
// human-readable detail for an operator to recognize it without a catalog
// round-trip.
type MissingItem struct {
	ContentType model.ContentType
	ContentID   string
	Detail      string
}

// Report is the result of one scan, per spec §4.8 step 5.
type Report struct {
	Mode           Mode
	Scanned        int64
	Missing        []MissingItem
	ItemsQueued    int64
	ItemsSkipped   int64
	ScanDurationMs int64
}

// Watchdog runs periodic scans over the local catalog store, enqueueing
// Background-priority repairs for anything missing on disk.
type Watchdog struct {
	catalogStore *catalog.Store
	queueStore   *queue.Store
	filestore    *filestore.Store
	now          func() time.Time
}

// New builds a Watchdog wired to the given collaborators.
func New(catalogStore *catalog.Store, queueStore *queue.Store, fileStore *filestore.Store) *Watchdog {
	return &Watchdog{catalogStore: catalogStore, queueStore: queueStore, filestore: fileStore, now: time.Now}
}

// Scan runs one full pass over tracks, album images, and artist images (spec
// §4.8 steps 1-5). Running it twice in a row in Actual mode enqueues nothing
// the second time: step 3's "skip if already queued in any status" check,
// combined with the fact that a freshly-enqueued repair's target file still
// doesn't exist until the download completes, makes each scan idempotent
// against the queue rather than against the filesystem.
func (w *Watchdog) Scan(ctx context.Context, mode Mode) (Report, error) {
	start := w.now()

	report := Report{Mode: mode}

	if err := w.scanTracks(ctx, mode, &report); err != nil {
		return report, err
	}

	if err := w.scanAlbumImages(ctx, mode, &report); err != nil {
		return report, err
	}

	if err := w.scanArtistImages(ctx, mode, &report); err != nil {
		return report, err
	}

	report.ScanDurationMs = w.now().Sub(start).Milliseconds()

	return report, nil
}

func (w *Watchdog) scanTracks(ctx context.Context, mode Mode, report *Report) error {
	tracks, err := w.catalogStore.ListTracks(ctx)
	if err != nil {
		return fmt.Errorf("watchdog: list tracks: %w", err)
	}

	for _, track := range tracks {
		report.Scanned++

		if track.AudioURI != "" && fileExists(track.AudioURI) {
			continue
		}

		detail := fmt.Sprintf("track %q (album %q, artist %q)", track.Title, track.AlbumTitle, track.ArtistName)
		if err := w.handleMissing(ctx, mode, report, model.ContentTypeTrackAudio, track.ID, detail); err != nil {
			return err
		}
	}

	return nil
}

func (w *Watchdog) scanAlbumImages(ctx context.Context, mode Mode, report *Report) error {
	images, err := w.catalogStore.ListAlbumImages(ctx)
	if err != nil {
		return fmt.Errorf("watchdog: list album images: %w", err)
	}

	for _, image := range images {
		report.Scanned++

		if fileExists(w.filestore.ImagePath(image.ID)) {
			continue
		}

		detail := fmt.Sprintf("album cover for %q", image.AlbumTitle)
		if err := w.handleMissing(ctx, mode, report, model.ContentTypeAlbumImage, image.ID, detail); err != nil {
			return err
		}
	}

	return nil
}

func (w *Watchdog) scanArtistImages(ctx context.Context, mode Mode, report *Report) error {
	images, err := w.catalogStore.ListArtistImages(ctx)
	if err != nil {
		return fmt.Errorf("watchdog: list artist images: %w", err)
	}

	for _, image := range images {
		report.Scanned++

		if fileExists(w.filestore.ImagePath(image.ID)) {
			continue
		}

		detail := fmt.Sprintf("artist portrait for %q", image.ArtistName)
		if err := w.handleMissing(ctx, mode, report, model.ContentTypeArtistImage, image.ID, detail); err != nil {
			return err
		}
	}

	return nil
}

// handleMissing implements spec §4.8 steps 3-4 for a single missing item.
func (w *Watchdog) handleMissing(
	ctx context.Context, mode Mode, report *Report,
	contentType model.ContentType, contentID, detail string,
) error {
	report.Missing = append(report.Missing, MissingItem{ContentType: contentType, ContentID: contentID, Detail: detail})

	if mode == DryRun {
		return nil
	}

	alreadyQueued, err := w.queueStore.ExistsForContent(ctx, contentType, contentID)
	if err != nil {
		return fmt.Errorf("watchdog: check queue for %s: %w", contentID, err)
	}

	if alreadyQueued {
		report.ItemsSkipped++

		return nil
	}

	item := &model.QueueItem{
		ID:            uuid.New(),
		Status:        model.QueueStatusPending,
		Priority:      model.PriorityBackground,
		ContentType:   contentType,
		ContentID:     contentID,
		RequestSource: model.RequestSourceWatchdog,
		Created:       w.now(),
	}

	if err := w.queueStore.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("watchdog: enqueue repair for %s: %w", contentID, err)
	}

	if err := w.queueStore.LogAudit(ctx, item.ID, model.AuditWatchdogQueued, detail); err != nil {
		return fmt.Errorf("watchdog: log watchdog queued audit for %s: %w", contentID, err)
	}

	report.ItemsQueued++

	return nil
}

// fileExists reports whether path names a regular file reachable without error.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
