// Package filestore implements the file handler (C3): per-job scratch
// directories, safe archive extraction, upload-tree classification, sharded
// canonical output paths, and idempotent job cleanup.
package filestore

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pezzottify/catalog-engine/internal/constants"
)

// ErrUnsupportedFileType is returned when an upload is neither a recognized
// archive nor a recognized audio file.
var ErrUnsupportedFileType = errors.New("filestore: unsupported file type")

// ErrArchiveEscape is returned when an archive entry's normalized target
// path would land outside the destination scratch directory.
var ErrArchiveEscape = errors.New("filestore: archive entry escapes destination directory")

// ErrFileTooLarge is returned when a file or archive entry exceeds the
// configured maximum size.
var ErrFileTooLarge = errors.New("filestore: file exceeds maximum size")

// audioExtensions is the allowlist used by both classification and the
// recursive audio-file listing.
var audioExtensions = map[string]struct{}{ //nolint:gochecknoglobals // Fixed allowlist from spec §4.2/§4.3.
	constants.ExtensionMP3:  {},
	constants.ExtensionFLAC: {},
	constants.ExtensionOGG:  {},
	constants.ExtensionWAV:  {},
	constants.ExtensionAAC:  {},
	constants.ExtensionM4A:  {},
}

// archiveExtensions is the allowlist of container formats Store can extract.
var archiveExtensions = map[string]struct{}{ //nolint:gochecknoglobals // Fixed allowlist; zip is the only supported container.
	".zip": {},
}

// IsAudioFile reports whether path's extension is in the recognized audio allowlist.
func IsAudioFile(path string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// IsArchiveFile reports whether path's extension is a recognized archive container.
func IsArchiveFile(path string) bool {
	_, ok := archiveExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Store manages scratch directories under a configured root and the
// canonical sharded media tree under another configured root.
type Store struct {
	scratchRoot string
	mediaRoot   string
	maxFileSize int64
}

// New returns a Store rooted at scratchRoot (per-job working directories)
// and mediaRoot (the canonical sharded output tree). maxFileSize <= 0 means
// no size limit is enforced.
func New(scratchRoot, mediaRoot string, maxFileSize int64) *Store {
	return &Store{
		scratchRoot: scratchRoot,
		mediaRoot:   mediaRoot,
		maxFileSize: maxFileSize,
	}
}

// MediaRoot returns the root of the canonical sharded output tree.
func (s *Store) MediaRoot() string {
	return s.mediaRoot
}

// JobDir returns the scratch directory path for jobID without creating it.
func (s *Store) JobDir(jobID string) string {
	return filepath.Join(s.scratchRoot, jobID)
}

// CreateJobDir creates and returns the scratch directory for jobID.
func (s *Store) CreateJobDir(jobID string) (string, error) {
	dir := s.JobDir(jobID)

	if err := os.MkdirAll(dir, constants.DefaultFolderPermissions); err != nil {
		return "", fmt.Errorf("filestore: create scratch dir for job %s: %w", jobID, err)
	}

	return dir, nil
}

// CleanupJob removes the scratch dir for jobID. It is idempotent: removing
// an already-absent directory is not an error, so callers may invoke it
// unconditionally on any exit path.
func (s *Store) CleanupJob(jobID string) error {
	if err := os.RemoveAll(s.JobDir(jobID)); err != nil {
		return fmt.Errorf("filestore: cleanup job %s: %w", jobID, err)
	}

	return nil
}

// ExtractArchive extracts a zip archive at archivePath into destDir, which
// must already exist. Every entry's normalized target path is checked to
// still be rooted under destDir; an entry whose "../" components would
// escape fails the whole extraction with ErrArchiveEscape and destDir is
// left in whatever partial state extraction reached. An absolute entry name
// is joined under destDir and extracted there rather than rejected.
func (s *Store) ExtractArchive(archivePath, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("filestore: open archive %s: %w", archivePath, err)
	}
	defer reader.Close() //nolint:errcheck // Read-only handle; close error carries no actionable state.

	destDirAbs, err := filepath.Abs(destDir)
	if err != nil {
		return fmt.Errorf("filestore: resolve dest dir: %w", err)
	}

	for _, entry := range reader.File {
		if err := s.extractEntry(entry, destDirAbs); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) extractEntry(entry *zip.File, destDirAbs string) error {
	targetPath := filepath.Join(destDirAbs, filepath.Clean(filepath.FromSlash(entry.Name)))

	if targetPath != destDirAbs && !strings.HasPrefix(targetPath, destDirAbs+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %s", ErrArchiveEscape, entry.Name)
	}

	if entry.FileInfo().IsDir() {
		if err := os.MkdirAll(targetPath, constants.DefaultFolderPermissions); err != nil {
			return fmt.Errorf("filestore: create dir %s: %w", targetPath, err)
		}

		return nil
	}

	if s.maxFileSize > 0 && int64(entry.UncompressedSize64) > s.maxFileSize {
		return fmt.Errorf("%w: %s (%d bytes)", ErrFileTooLarge, entry.Name, entry.UncompressedSize64)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), constants.DefaultFolderPermissions); err != nil {
		return fmt.Errorf("filestore: create parent dir for %s: %w", targetPath, err)
	}

	return copyZipEntry(entry, targetPath, s.maxFileSize)
}

func copyZipEntry(entry *zip.File, targetPath string, maxFileSize int64) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("filestore: open entry %s: %w", entry.Name, err)
	}
	defer src.Close() //nolint:errcheck // Read-only handle.

	dst, err := os.OpenFile(targetPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, constants.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("filestore: create file %s: %w", targetPath, err)
	}
	defer dst.Close() //nolint:errcheck // Write already flushed or failed by the time we'd act on a close error.

	var written int64

	limit := maxFileSize
	if limit <= 0 {
		limit = int64(entry.UncompressedSize64) + 1
	}

	written, err = io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return fmt.Errorf("filestore: write %s: %w", targetPath, err)
	}

	if maxFileSize > 0 && written > maxFileSize {
		return fmt.Errorf("%w: %s", ErrFileTooLarge, entry.Name)
	}

	return nil
}

// ShardedPath returns the canonical output path for a track id and
// extension: media_root/audio/X[0..2]/X[2..4]/X.<ext>.
func (s *Store) ShardedPath(trackID, ext string) string {
	first, second := shardPrefixes(trackID)

	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	return filepath.Join(s.mediaRoot, "audio", first, second, trackID+ext)
}

// EnsureShardedDir creates the two levels of sharding directories for
// trackID under the media root and returns the final file path.
func (s *Store) EnsureShardedDir(trackID, ext string) (string, error) {
	path := s.ShardedPath(trackID, ext)

	if err := os.MkdirAll(filepath.Dir(path), constants.DefaultFolderPermissions); err != nil {
		return "", fmt.Errorf("filestore: create sharded dir for %s: %w", trackID, err)
	}

	return path, nil
}

// ImagePath returns the canonical output path for an image id per spec §6's
// filesystem layout: media_root/images/<id>.jpg.
func (s *Store) ImagePath(imageID string) string {
	return filepath.Join(s.mediaRoot, "images", imageID+".jpg")
}

func shardPrefixes(id string) (first, second string) {
	padded := id
	for len(padded) < constants.ShardPrefixLength*2 {
		padded += "0"
	}

	return padded[0:constants.ShardPrefixLength], padded[constants.ShardPrefixLength : constants.ShardPrefixLength*2]
}

// ListAudioFiles recursively walks root and returns every file whose
// extension is in the audio allowlist, sorted by the order os.ReadDir
// yields directory entries (lexical).
func ListAudioFiles(root string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if IsAudioFile(path) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("filestore: list audio files under %s: %w", root, err)
	}

	return files, nil
}
