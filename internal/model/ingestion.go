package model

import "time"

// IngestionStatus is a node in the ingestion state machine (spec §4.7).
type IngestionStatus uint8

// Ingestion job statuses.
const (
	// IngestionStatusPending means the job was created but analysis hasn't started.
	IngestionStatusPending IngestionStatus = iota
	// IngestionStatusAnalyzing means files are being probed and tagged.
	IngestionStatusAnalyzing
	// IngestionStatusIdentifyingAlbum means the matched catalog album is being determined.
	IngestionStatusIdentifyingAlbum
	// IngestionStatusMappingTracks means uploaded files are being paired to catalog tracks.
	IngestionStatusMappingTracks
	// IngestionStatusConverting means matched files are being transcoded/copied to their output paths.
	IngestionStatusConverting
	// IngestionStatusAwaitingReview means the job is blocked on a human-answered ReviewItem.
	IngestionStatusAwaitingReview
	// IngestionStatusCompleted is a terminal success state.
	IngestionStatusCompleted
	// IngestionStatusFailed is a terminal failure state.
	IngestionStatusFailed
)

// String returns the stable textual representation stored in the database.
func (s IngestionStatus) String() string {
	switch s {
	case IngestionStatusPending:
		return "Pending"
	case IngestionStatusAnalyzing:
		return "Analyzing"
	case IngestionStatusIdentifyingAlbum:
		return "IdentifyingAlbum"
	case IngestionStatusMappingTracks:
		return "MappingTracks"
	case IngestionStatusConverting:
		return "Converting"
	case IngestionStatusAwaitingReview:
		return "AwaitingReview"
	case IngestionStatusCompleted:
		return "Completed"
	case IngestionStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ParseIngestionStatus parses the textual representation written by String.
func ParseIngestionStatus(s string) IngestionStatus {
	switch s {
	case "Pending":
		return IngestionStatusPending
	case "Analyzing":
		return IngestionStatusAnalyzing
	case "IdentifyingAlbum":
		return IngestionStatusIdentifyingAlbum
	case "MappingTracks":
		return IngestionStatusMappingTracks
	case "Converting":
		return IngestionStatusConverting
	case "AwaitingReview":
		return IngestionStatusAwaitingReview
	case "Completed":
		return IngestionStatusCompleted
	case "Failed":
		return IngestionStatusFailed
	default:
		return IngestionStatusPending
	}
}

// UploadType is the shape of an upload as classified by the file handler.
type UploadType uint8

// Upload type classifications.
const (
	// UploadTypeTrack is a single audio file.
	UploadTypeTrack UploadType = iota
	// UploadTypeAlbum is a flat directory of audio files.
	UploadTypeAlbum
	// UploadTypeCollection is a directory of subdirectories, each looking like an Album.
	UploadTypeCollection
)

// String returns the stable textual representation stored in the database.
func (u UploadType) String() string {
	switch u {
	case UploadTypeTrack:
		return "Track"
	case UploadTypeAlbum:
		return "Album"
	case UploadTypeCollection:
		return "Collection"
	default:
		return "Unknown"
	}
}

// ParseUploadType parses the textual representation written by String.
func ParseUploadType(s string) UploadType {
	switch s {
	case "Track":
		return UploadTypeTrack
	case "Album":
		return UploadTypeAlbum
	case "Collection":
		return UploadTypeCollection
	default:
		return UploadTypeTrack
	}
}

// MatchSource identifies which strategy produced an album match.
type MatchSource uint8

// Album match sources.
const (
	// MatchSourceFingerprint means the fingerprint matcher produced the match.
	MatchSourceFingerprint MatchSource = iota
	// MatchSourceAgent means a pluggable identification oracle produced the match.
	MatchSourceAgent
	// MatchSourceHumanReview means a human resolved a ReviewItem.
	MatchSourceHumanReview
	// MatchSourceDownloadRequest means the album id was already known from the linked queue item.
	MatchSourceDownloadRequest
)

// String returns the stable textual representation stored in the database.
func (m MatchSource) String() string {
	switch m {
	case MatchSourceFingerprint:
		return "Fingerprint"
	case MatchSourceAgent:
		return "Agent"
	case MatchSourceHumanReview:
		return "HumanReview"
	case MatchSourceDownloadRequest:
		return "DownloadRequest"
	default:
		return "Unknown"
	}
}

// TicketType is the fingerprint matcher's verdict, used to route a job.
type TicketType uint8

// Ticket classifications.
const (
	// TicketSuccess means the match is confident enough to proceed automatically.
	TicketSuccess TicketType = iota
	// TicketReview means a human should confirm the match.
	TicketReview
	// TicketFailure means no usable candidate was found.
	TicketFailure
)

// String returns the stable textual representation stored in the database.
func (t TicketType) String() string {
	switch t {
	case TicketSuccess:
		return "Success"
	case TicketReview:
		return "Review"
	case TicketFailure:
		return "Failure"
	default:
		return "Unknown"
	}
}

// IngestionContextKind distinguishes a manual upload from one linked to a download request.
type IngestionContextKind uint8

// Ingestion job contexts.
const (
	// ContextManual means the job originated from a direct user upload.
	ContextManual IngestionContextKind = iota
	// ContextDownloadRequest means the job is linked to a download-request queue item, completed when the job finishes.
	ContextDownloadRequest
)

// IngestionJob is one per upload-session album.
type IngestionJob struct {
	ID               string
	SessionID        string
	UserID           string
	OriginalFilename string
	TotalSize        int64
	FileCount        int64
	ContextKind      IngestionContextKind
	QueueItemID      *string // set when ContextKind == ContextDownloadRequest
	UploadType       UploadType
	Status           IngestionStatus
	DetectedArtist   string
	DetectedAlbum    string
	DetectedYear     string
	MatchedAlbumID   string
	MatchConfidence  float64
	MatchSource      MatchSource
	TicketType       TicketType
	MatchScore       float64
	MatchDeltaMs     int64
	TracksMatched    int64
	TracksConverted  int64
	ErrorMessage     string
	Created          time.Time
	Updated          time.Time
	Completed        *time.Time
}

// ConversionReason explains why a file was or wasn't transcoded.
type ConversionReason uint8

// Conversion reasons (spec §3, IngestionFile).
const (
	// ConversionNoneNeeded means the file's bitrate is already within tolerance of the target.
	ConversionNoneNeeded ConversionReason = iota
	// ConversionHighBitrate means the file exceeds the target by more than tolerance.
	ConversionHighBitrate
	// ConversionLowBitratePendingConfirmation means the file is below target and awaits a review decision.
	ConversionLowBitratePendingConfirmation
	// ConversionLowBitrateApproved means a reviewer approved converting a low-bitrate file.
	ConversionLowBitrateApproved
	// ConversionUndetectableBitrate means the probe could not determine a bitrate.
	ConversionUndetectableBitrate
)

// String returns a fixed human-readable label for the reason.
func (c ConversionReason) String() string {
	switch c {
	case ConversionNoneNeeded:
		return "NoConversionNeeded"
	case ConversionHighBitrate:
		return "HighBitrate"
	case ConversionLowBitratePendingConfirmation:
		return "LowBitratePendingConfirmation"
	case ConversionLowBitrateApproved:
		return "LowBitrateApproved"
	case ConversionUndetectableBitrate:
		return "UndetectableBitrate"
	default:
		return "Unknown"
	}
}

// ProbeResult is what C2's probe operation returns for one file.
type ProbeResult struct {
	DurationMs int64
	Codec      string
	Bitrate    int64 // 0 means undetectable
	SampleRate int64
}

// FileTags are the recognized tag keys extracted by C2.
type FileTags struct {
	Artist     string
	Album      string
	Title      string
	TrackNum   int64
	TrackTotal int64
	DiscNum    int64
	Year       string
}

// IngestionFile is one per audio file within a job.
type IngestionFile struct {
	ID               string
	JobID            string
	Filename         string
	Size             int64
	TempPath         string
	Probed           *ProbeResult
	Tags             *FileTags
	MatchedTrackID   string
	MatchConfidence  float64
	OutputPath       string
	Converted        bool
	ConversionReason ConversionReason
	OriginalBitrate  int64
	ErrorMessage     string
}

// ReviewOption is one choice a human may pick to resolve a ReviewItem.
type ReviewOption struct {
	ID          string
	Label       string
	Description string
}

// ReviewItem is a pending question requiring human disambiguation.
type ReviewItem struct {
	ID             string
	JobID          string
	Question       string
	Options        []ReviewOption
	Created        time.Time
	ResolvedAt     *time.Time
	ResolvedBy     string
	SelectedOption string
}

// AlbumCandidate is a scored candidate during the general identification path.
type AlbumCandidate struct {
	AlbumID     string
	Artist      string
	Name        string
	TrackTitles []string
	TotalMs     int64
	Score       float64
}

// MetadataSummary aggregates per-file tags into one job-level view.
type MetadataSummary struct {
	Artist      string
	Album       string
	Year        string
	TrackTitles []string
	TotalMs     int64
}
