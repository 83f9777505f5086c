package constants

import "os"

const (
	// DefaultFilePermissions sets the default permissions for regular files: (rw-r--r--).
	// Owner: read and write;
	// Group: read;
	// Others: read.
	DefaultFilePermissions os.FileMode = 0o644

	// DefaultFolderPermissions sets the default permissions for regular folders: (rwxr-xr-x).
	// Owner: read, write, and execute;
	// Group: read and execute;
	// Others: read and execute.
	DefaultFolderPermissions os.FileMode = 0o755
)

// File extension constants.
const (
	ExtensionMP3  = ".mp3"
	ExtensionFLAC = ".flac"
	ExtensionOGG  = ".ogg"
	ExtensionWAV  = ".wav"
	ExtensionAAC  = ".aac"
	ExtensionM4A  = ".m4a"
	ExtensionBin  = ".bin"
	ExtensionJPG  = ".jpg"
)

// ShardPrefixLength is the number of leading characters of a content id
// used for each level of the sharded media directory tree:
// media_root/audio/X[0..2]/X[2..4]/X.<ext>.
const ShardPrefixLength = 2
