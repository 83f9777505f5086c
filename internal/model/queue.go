// Package model holds the domain types shared by the download queue and
// ingestion stores: QueueItem, IngestionJob, IngestionFile, ReviewItem,
// AuditEntry and their enumerations.
package model

import (
	"time"

	"github.com/google/uuid"
)

// QueueStatus is the lifecycle state of a QueueItem.
type QueueStatus uint8

// QueueItem statuses.
const (
	// QueueStatusPending means the item is waiting to be claimed.
	QueueStatusPending QueueStatus = iota
	// QueueStatusInProgress means a worker currently holds the item.
	QueueStatusInProgress
	// QueueStatusRetryWaiting means the item failed and is waiting for its backoff window.
	QueueStatusRetryWaiting
	// QueueStatusCompleted is a terminal success state.
	QueueStatusCompleted
	// QueueStatusFailed is a terminal failure state.
	QueueStatusFailed
)

// String returns the stable textual representation stored in the database.
func (s QueueStatus) String() string {
	switch s {
	case QueueStatusPending:
		return "Pending"
	case QueueStatusInProgress:
		return "InProgress"
	case QueueStatusRetryWaiting:
		return "RetryWaiting"
	case QueueStatusCompleted:
		return "Completed"
	case QueueStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ParseQueueStatus parses the textual representation written by String.
func ParseQueueStatus(s string) QueueStatus {
	switch s {
	case "Pending":
		return QueueStatusPending
	case "InProgress":
		return QueueStatusInProgress
	case "RetryWaiting":
		return QueueStatusRetryWaiting
	case "Completed":
		return QueueStatusCompleted
	case "Failed":
		return QueueStatusFailed
	default:
		return QueueStatusPending
	}
}

// Priority orders queue items: User > Expansion > Background.
type Priority uint8

// Queue item priorities, ordered highest first.
const (
	// PriorityUser is a directly user-requested download.
	PriorityUser Priority = iota
	// PriorityExpansion is a child item spawned by a parent (e.g. album cover).
	PriorityExpansion
	// PriorityBackground is a watchdog-originated repair.
	PriorityBackground
)

// String returns the stable textual representation stored in the database.
func (p Priority) String() string {
	switch p {
	case PriorityUser:
		return "User"
	case PriorityExpansion:
		return "Expansion"
	case PriorityBackground:
		return "Background"
	default:
		return "Unknown"
	}
}

// ParsePriority parses the textual representation written by String.
func ParsePriority(s string) Priority {
	switch s {
	case "User":
		return PriorityUser
	case "Expansion":
		return PriorityExpansion
	case "Background":
		return PriorityBackground
	default:
		return PriorityBackground
	}
}

// ContentType identifies the kind of media a QueueItem downloads.
type ContentType uint8

// Queue item content types.
const (
	// ContentTypeAlbum is a parent item that spawns track/image children.
	ContentTypeAlbum ContentType = iota
	// ContentTypeTrackAudio is a single track's audio payload.
	ContentTypeTrackAudio
	// ContentTypeAlbumImage is an album cover image.
	ContentTypeAlbumImage
	// ContentTypeArtistImage is an artist portrait image.
	ContentTypeArtistImage
)

// String returns the stable textual representation stored in the database.
func (c ContentType) String() string {
	switch c {
	case ContentTypeAlbum:
		return "Album"
	case ContentTypeTrackAudio:
		return "TrackAudio"
	case ContentTypeAlbumImage:
		return "AlbumImage"
	case ContentTypeArtistImage:
		return "ArtistImage"
	default:
		return "Unknown"
	}
}

// ParseContentType parses the textual representation written by String.
func ParseContentType(s string) ContentType {
	switch s {
	case "Album":
		return ContentTypeAlbum
	case "TrackAudio":
		return ContentTypeTrackAudio
	case "AlbumImage":
		return ContentTypeAlbumImage
	case "ArtistImage":
		return ContentTypeArtistImage
	default:
		return ContentTypeTrackAudio
	}
}

// RequestSource identifies who caused a QueueItem to be enqueued.
type RequestSource uint8

// Queue item request sources.
const (
	// RequestSourceUser means a user directly requested the download.
	RequestSourceUser RequestSource = iota
	// RequestSourceWatchdog means the missing-files watchdog enqueued a repair.
	RequestSourceWatchdog
	// RequestSourceExpansion means a parent item spawned this as a child.
	RequestSourceExpansion
)

// String returns the stable textual representation stored in the database.
func (r RequestSource) String() string {
	switch r {
	case RequestSourceUser:
		return "User"
	case RequestSourceWatchdog:
		return "Watchdog"
	case RequestSourceExpansion:
		return "Expansion"
	default:
		return "Unknown"
	}
}

// ParseRequestSource parses the textual representation written by String.
func ParseRequestSource(s string) RequestSource {
	switch s {
	case "User":
		return RequestSourceUser
	case "Watchdog":
		return RequestSourceWatchdog
	case "Expansion":
		return RequestSourceExpansion
	default:
		return RequestSourceUser
	}
}

// ErrorKind classifies a queue-side failure for retry decisions.
type ErrorKind uint8

// Queue-side error taxonomy (spec §7).
const (
	// ErrorKindConnection is a transient network error from the downloader; retryable.
	ErrorKindConnection ErrorKind = iota
	// ErrorKindStorage is a local I/O error; retryable.
	ErrorKindStorage
	// ErrorKindPermanent means the downloader reports content missing or malformed; not retried.
	ErrorKindPermanent
	// ErrorKindUnknown is parent-aggregation synthesis ("k/n children failed"); not retried at the parent level.
	ErrorKindUnknown
)

// String returns the stable textual representation stored in the database.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindConnection:
		return "Connection"
	case ErrorKindStorage:
		return "Storage"
	case ErrorKindPermanent:
		return "Permanent"
	case ErrorKindUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

// ParseErrorKind parses the textual representation written by String.
func ParseErrorKind(s string) ErrorKind {
	switch s {
	case "Connection":
		return ErrorKindConnection
	case "Storage":
		return ErrorKindStorage
	case "Permanent":
		return ErrorKindPermanent
	default:
		return ErrorKindUnknown
	}
}

// QueueItem is one row per download unit.
type QueueItem struct {
	ID                 uuid.UUID
	ParentID           *uuid.UUID
	Status             QueueStatus
	Priority           Priority
	ContentType        ContentType
	ContentID          string
	ContentName        string
	ArtistName         string
	RequestSource      RequestSource
	RequestedByUserID  string
	Created            time.Time
	Started            *time.Time
	Completed          *time.Time
	LastAttempt        *time.Time
	NextRetry          *time.Time
	RetryCount         int64
	MaxRetries         int64
	ErrorKind          *ErrorKind
	ErrorMessage       string
	BytesDownloaded    *int64
	ProcessingDuration int64
}

// ChildrenProgress summarizes a parent's children for aggregation decisions.
type ChildrenProgress struct {
	Total      int64
	Completed  int64
	Failed     int64
	InProgress int64
}

// AuditEventKind is a stable string identifying an audit log entry's kind.
type AuditEventKind string

// Audit event kinds (spec §6), stable strings persisted verbatim.
const (
	AuditRequestCreated      AuditEventKind = "RequestCreated"
	AuditDownloadStarted     AuditEventKind = "DownloadStarted"
	AuditDownloadCompleted   AuditEventKind = "DownloadCompleted"
	AuditRetryScheduled      AuditEventKind = "RetryScheduled"
	AuditDownloadFailed      AuditEventKind = "DownloadFailed"
	AuditAdminRetry          AuditEventKind = "AdminRetry"
	AuditChildrenCreated     AuditEventKind = "ChildrenCreated"
	AuditWatchdogQueued      AuditEventKind = "WatchdogQueued"
	AuditWatchdogScanStarted AuditEventKind = "WatchdogScanStarted"
	AuditWatchdogScanDone    AuditEventKind = "WatchdogScanCompleted"
)

// AuditEntry is one immutable append-only record keyed by queue item id.
type AuditEntry struct {
	ID          int64
	QueueItemID uuid.UUID
	Kind        AuditEventKind
	Detail      string
	CreatedAt   time.Time
}

// HourlyDailyCounts is the result of a rate-limit counting query.
type HourlyDailyCounts struct {
	CompletedCount int64
}

// UserStats summarizes a user's current queue footprint for rate limiting.
type UserStats struct {
	RequestsToday int64
	InQueue       int64
}
