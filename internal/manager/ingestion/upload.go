package ingestion

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pezzottify/catalog-engine/internal/constants"
	"github.com/pezzottify/catalog-engine/internal/filestore"
	"github.com/pezzottify/catalog-engine/internal/model"
	"github.com/pezzottify/catalog-engine/internal/utils"
)

// CreateUpload runs the upload-processing steps of spec §4.7: write the
// upload to a session-scoped scratch directory, extract it if it's an
// archive, classify its shape, and create one IngestionJob per album (a
// Collection upload fans out into one job per child directory sharing
// sessionID; a Track or Album upload produces exactly one job).
//
// queueItemID links the upload to a DownloadRequest-context queue item that
// is blocked from re-downloading while this upload is processed; it is nil
// for manual uploads, and is attached to a job only when the upload yields
// a single job (a Track, an Album, or a Collection with one child
// directory). The jobs of a multi-child Collection carry no link.
func (m *Manager) CreateUpload(
	ctx context.Context,
	userID, originalFilename string,
	src io.Reader,
	contextKind model.IngestionContextKind,
	queueItemID *string,
) ([]*model.IngestionJob, error) {
	sessionID := uuid.NewString()

	sessionDir, err := m.filestore.CreateJobDir(sessionID)
	if err != nil {
		return nil, fmt.Errorf("ingestion: create session scratch dir: %w", err)
	}

	rootDir, err := m.stageUpload(sessionDir, originalFilename, src)
	if err != nil {
		return nil, err
	}

	uploadType, err := filestore.Classify(rootDir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: classify upload: %w", err)
	}

	var roots []string

	if uploadType == model.UploadTypeCollection {
		roots, err = collectionChildDirs(rootDir)
		if err != nil {
			return nil, err
		}
	} else {
		roots = []string{rootDir}
	}

	jobs := make([]*model.IngestionJob, 0, len(roots))

	for _, childRoot := range roots {
		job, err := m.createJobForRoot(ctx, sessionID, userID, originalFilename, childRoot, contextKind, queueItemID, len(roots) > 1)
		if err != nil {
			return nil, err
		}

		jobs = append(jobs, job)
	}

	if contextKind == model.ContextDownloadRequest && queueItemID != nil {
		id, err := uuid.Parse(*queueItemID)
		if err != nil {
			return nil, fmt.Errorf("ingestion: parse linked queue item id: %w", err)
		}

		if err := m.queueStore.MarkLinkedInProgress(ctx, id); err != nil {
			return nil, fmt.Errorf("ingestion: mark linked queue item in progress: %w", err)
		}
	}

	return jobs, nil
}

// stageUpload writes src to sessionDir under originalFilename, then extracts
// it in place if it's a recognized archive container, returning the
// directory the classifier should inspect.
func (m *Manager) stageUpload(sessionDir, originalFilename string, src io.Reader) (string, error) {
	uploadPath := filepath.Join(sessionDir, utils.SanitizeFilename(filepath.Base(originalFilename)))

	dst, err := os.Create(uploadPath) //nolint:gosec // uploadPath is derived from a scratch dir this process created.
	if err != nil {
		return "", fmt.Errorf("ingestion: create staged upload file: %w", err)
	}

	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()

	if copyErr != nil {
		return "", fmt.Errorf("ingestion: write staged upload: %w", copyErr)
	}

	if closeErr != nil {
		return "", fmt.Errorf("ingestion: close staged upload: %w", closeErr)
	}

	if !filestore.IsArchiveFile(uploadPath) {
		return sessionDir, nil
	}

	extractDir := filepath.Join(sessionDir, "extracted")
	if err := os.MkdirAll(extractDir, constants.DefaultFolderPermissions); err != nil {
		return "", fmt.Errorf("ingestion: create extraction dir: %w", err)
	}

	if err := m.filestore.ExtractArchive(uploadPath, extractDir); err != nil {
		return "", fmt.Errorf("ingestion: extract upload archive: %w", err)
	}

	return extractDir, nil
}

// collectionChildDirs lists the immediate subdirectories of a tree Classify
// has already confirmed is a Collection.
func collectionChildDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read collection root %s: %w", root, err)
	}

	var dirs []string

	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(root, entry.Name()))
		}
	}

	return dirs, nil
}

func (m *Manager) createJobForRoot(
	ctx context.Context,
	sessionID, userID, originalFilename, root string,
	contextKind model.IngestionContextKind,
	queueItemID *string,
	isCollectionChild bool,
) (*model.IngestionJob, error) {
	audioFiles, err := filestore.ListAudioFiles(root)
	if err != nil {
		return nil, fmt.Errorf("ingestion: list audio files under %s: %w", root, err)
	}

	childUploadType, err := filestore.Classify(root)
	if err != nil {
		return nil, fmt.Errorf("ingestion: classify job root %s: %w", root, err)
	}

	var totalSize int64

	files := make([]*model.IngestionFile, 0, len(audioFiles))

	jobID := uuid.NewString()

	for _, path := range audioFiles {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("ingestion: stat uploaded file %s: %w", path, err)
		}

		totalSize += info.Size()

		files = append(files, &model.IngestionFile{
			ID:       uuid.NewString(),
			JobID:    jobID,
			Filename: filepath.Base(path),
			Size:     info.Size(),
			TempPath: path,
		})
	}

	now := m.clock()

	job := &model.IngestionJob{
		ID:               jobID,
		SessionID:        sessionID,
		UserID:           userID,
		OriginalFilename: originalFilename,
		TotalSize:        totalSize,
		FileCount:        int64(len(files)),
		ContextKind:      contextKind,
		UploadType:       childUploadType,
		Status:           model.IngestionStatusPending,
		Created:          now,
		Updated:          now,
	}

	// Children of a multi-child Collection identify against the catalog
	// independently; the linked queue item (if any) names a single album.
	if !isCollectionChild {
		job.QueueItemID = queueItemID
	}

	if err := m.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("ingestion: create job: %w", err)
	}

	if len(files) > 0 {
		if err := m.store.CreateFiles(ctx, files); err != nil {
			return nil, fmt.Errorf("ingestion: create job files: %w", err)
		}
	}

	return job, nil
}
