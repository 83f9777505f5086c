package notify

// EventType discriminates the envelope's Payload shape. Values are stable
// strings: they cross the wire to browser/app clients.
type EventType string

const (
	// EventProgress is emitted during analyze/convert with a completion percentage.
	EventProgress EventType = "progress"
	// EventMatchFound is emitted once album identification produces a ticket.
	EventMatchFound EventType = "match_found"
	// EventReviewNeeded is emitted when a job needs human disambiguation.
	EventReviewNeeded EventType = "review_needed"
	// EventCompleted is emitted when an ingestion job finishes successfully.
	EventCompleted EventType = "completed"
	// EventFailed is emitted when an ingestion job or download fails terminally.
	EventFailed EventType = "failed"
	// EventCatalogInvalidate signals a catalog entity changed and should be
	// re-fetched/re-indexed by subscribers.
	EventCatalogInvalidate EventType = "catalog_invalidate"
	// EventDownloadCompleted is sent to the specific requesters of a download
	// (the primary requester and any auto-completed duplicates).
	EventDownloadCompleted EventType = "download_completed"
)

// Envelope is the wire shape of every message the hub sends.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ProgressPayload backs EventProgress.
type ProgressPayload struct {
	JobID     string  `json:"job_id"`
	Phase     string  `json:"phase"`
	Percent   float64 `json:"percent"`
	FilesDone int     `json:"files_done"`
}

// MatchFoundPayload backs EventMatchFound.
type MatchFoundPayload struct {
	JobID      string   `json:"job_id"`
	TicketType string   `json:"ticket_type"`
	Candidates []string `json:"candidates,omitempty"`
}

// ReviewOptionPayload is one selectable option of a ReviewNeededPayload.
type ReviewOptionPayload struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// ReviewNeededPayload backs EventReviewNeeded.
type ReviewNeededPayload struct {
	JobID    string                `json:"job_id"`
	Question string                `json:"question"`
	Options  []ReviewOptionPayload `json:"options"`
}

// CompletedPayload backs EventCompleted.
type CompletedPayload struct {
	JobID           string `json:"job_id"`
	TracksConverted int64  `json:"tracks_converted"`
	AlbumName       string `json:"album_name"`
	ArtistName      string `json:"artist_name"`
}

// FailedPayload backs EventFailed.
type FailedPayload struct {
	JobID        string `json:"job_id"`
	ErrorMessage string `json:"error_message"`
}

// CatalogEventPayload backs EventCatalogInvalidate.
type CatalogEventPayload struct {
	Kind       string `json:"kind"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Source     string `json:"source"`
}

// DownloadCompletedPayload backs EventDownloadCompleted.
type DownloadCompletedPayload struct {
	RequestID   string `json:"request_id"`
	AlbumName   string `json:"album_name"`
	ArtistName  string `json:"artist_name"`
	ImagesReady bool   `json:"images_ready"`
}
