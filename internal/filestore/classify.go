package filestore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// Classify inspects the extracted tree rooted at dir and determines its
// UploadType by structure alone, never by tag content:
//   - a single audio file at the root is a Track
//   - a flat directory of audio files (no subdirectories) is an Album
//   - a directory of subdirectories, each itself a flat directory of audio
//     files, is a Collection
//
// Any other shape fails with ErrUnsupportedFileType.
func Classify(dir string) (model.UploadType, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("filestore: read dir %s: %w", dir, err)
	}

	var (
		audioFiles []string
		subdirs    []string
		other      []string
	)

	for _, entry := range entries {
		name := entry.Name()

		switch {
		case entry.IsDir():
			subdirs = append(subdirs, filepath.Join(dir, name))
		case IsAudioFile(name):
			audioFiles = append(audioFiles, name)
		default:
			other = append(other, name)
		}
	}

	switch {
	case len(subdirs) == 0 && len(audioFiles) == 1 && len(other) == 0:
		return model.UploadTypeTrack, nil
	case len(subdirs) == 0 && len(audioFiles) > 1:
		return model.UploadTypeAlbum, nil
	case len(subdirs) > 0 && len(audioFiles) == 0:
		if err := classifyCollectionChildren(subdirs); err != nil {
			return 0, err
		}

		return model.UploadTypeCollection, nil
	default:
		return 0, fmt.Errorf("%w: %s is neither a track, album, nor collection", ErrUnsupportedFileType, dir)
	}
}

// classifyCollectionChildren validates that every subdirectory of a
// candidate Collection is itself a flat directory of audio files — i.e.
// would classify on its own as an Album, or as a Track when it holds a
// single audio file.
func classifyCollectionChildren(subdirs []string) error {
	for _, sub := range subdirs {
		childType, err := Classify(sub)
		if err != nil {
			return err
		}

		if childType != model.UploadTypeAlbum && childType != model.UploadTypeTrack {
			return fmt.Errorf("%w: collection child %s is not an album", ErrUnsupportedFileType, sub)
		}
	}

	return nil
}
