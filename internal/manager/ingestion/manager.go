// Package ingestion implements the ingestion manager (C7): the upload
// processing entrypoint and the per-job state machine of spec §4.7 —
// Analyze, IdentifyAlbum, MapTracks, Convert — layered over the ingestion
// store (C5), the audio probe & tag extractor (C2), the file handler (C3),
// the fingerprint matcher (C1), the external downloader and search
// collaborators, and the WebSocket notifier (C9).
package ingestion

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pezzottify/catalog-engine/internal/client/catalog"
	"github.com/pezzottify/catalog-engine/internal/client/search"
	"github.com/pezzottify/catalog-engine/internal/config"
	"github.com/pezzottify/catalog-engine/internal/filestore"
	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/notify"
	"github.com/pezzottify/catalog-engine/internal/store/ingestion"
	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

// resolvedAlbumCacheSize bounds the per-process cache of search-resolved
// album candidates — a Collection upload can spawn dozens of sibling album
// jobs in one session that legitimately search overlapping artist names.
const resolvedAlbumCacheSize = 256

// prober is the subset of *probe.Prober the manager depends on, declared
// locally so tests can substitute a fake without shelling out to a real
// transcoder binary.
type prober interface {
	Probe(ctx context.Context, path string) (model.ProbeResult, error)
	ExtractTags(ctx context.Context, path string) (map[string]string, error)
	Transcode(ctx context.Context, srcPath, destPath string, bitrateKbps int64) error
}

// Manager is the ingestion processor.
type Manager struct {
	store      *ingestion.Store
	queueStore *queue.Store
	filestore  *filestore.Store
	prober     prober
	catalog    catalog.Client
	search     search.Client
	notifier   *notify.Notifier
	cfg        *config.Config

	resolvedCache *lru.Cache[string, *search.ResolvedAlbum]

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// New builds a Manager wired to the given collaborators.
func New(
	store *ingestion.Store,
	queueStore *queue.Store,
	fileStore *filestore.Store,
	audioProber prober,
	catalogClient catalog.Client,
	searchClient search.Client,
	notifier *notify.Notifier,
	cfg *config.Config,
) *Manager {
	cache, _ := lru.New[string, *search.ResolvedAlbum](resolvedAlbumCacheSize)

	return &Manager{
		store:         store,
		queueStore:    queueStore,
		filestore:     fileStore,
		prober:        audioProber,
		catalog:       catalogClient,
		search:        searchClient,
		notifier:      notifier,
		cfg:           cfg,
		resolvedCache: cache,
		now:           time.Now,
	}
}

func (m *Manager) clock() time.Time {
	return m.now()
}

// Advance runs exactly one macro-step of a job's state machine: Pending and
// Analyzing both resolve to a single analyze pass, then IdentifyingAlbum,
// MappingTracks, and Converting each run to their own completion before
// returning control to the caller (the scheduler tick). It returns false
// when the job is terminal, awaiting a human review, or does not exist.
func (m *Manager) Advance(ctx context.Context, jobID string) (bool, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}

	switch job.Status { //nolint:exhaustive // AwaitingReview/Completed/Failed fall to default.
	case model.IngestionStatusPending, model.IngestionStatusAnalyzing:
		return true, m.analyze(ctx, job)
	case model.IngestionStatusIdentifyingAlbum:
		return true, m.identifyAlbum(ctx, job)
	case model.IngestionStatusMappingTracks:
		return true, m.mapTracks(ctx, job)
	case model.IngestionStatusConverting:
		return true, m.convert(ctx, job)
	default:
		return false, nil
	}
}

// GetJob is a read-only passthrough for status polling.
func (m *Manager) GetJob(ctx context.Context, jobID string) (*model.IngestionJob, error) {
	return m.store.GetJob(ctx, jobID)
}

// ListJobsByUser is a read-only passthrough.
func (m *Manager) ListJobsByUser(ctx context.Context, userID string) ([]*model.IngestionJob, error) {
	return m.store.ListJobsByUser(ctx, userID)
}

// ListJobsInSession is a read-only passthrough, used to report a
// Collection upload's overall progress to its uploader.
func (m *Manager) ListJobsInSession(ctx context.Context, sessionID string) ([]*model.IngestionJob, error) {
	return m.store.ListJobsInSession(ctx, sessionID)
}

// ListPendingAndActiveJobIDs returns every job id not yet in a terminal or
// awaiting-review state, for the scheduler to drive forward each tick.
func (m *Manager) ListPendingAndActiveJobIDs(ctx context.Context) ([]string, error) {
	var ids []string

	for _, status := range []model.IngestionStatus{
		model.IngestionStatusPending,
		model.IngestionStatusAnalyzing,
		model.IngestionStatusIdentifyingAlbum,
		model.IngestionStatusMappingTracks,
		model.IngestionStatusConverting,
	} {
		jobs, err := m.store.ListJobsByStatus(ctx, status)
		if err != nil {
			return nil, err
		}

		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
	}

	return ids, nil
}
