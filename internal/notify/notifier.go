package notify

import "context"

// Notifier exposes the named operations of spec §4.9 over a Hub.
type Notifier struct {
	hub *Hub
}

// NewNotifier wraps hub with the spec's named operations.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// NotifyProgress reports analyze/convert progress for an ingestion job.
func (n *Notifier) NotifyProgress(ctx context.Context, userID, jobID, phase string, percent float64, filesDone int) {
	n.hub.BroadcastToUser(ctx, userID, Envelope{
		Type: EventProgress,
		Payload: ProgressPayload{
			JobID:     jobID,
			Phase:     phase,
			Percent:   percent,
			FilesDone: filesDone,
		},
	})
}

// NotifyMatchFound reports the ticket produced by album identification.
func (n *Notifier) NotifyMatchFound(ctx context.Context, userID, jobID, ticketType string, candidates []string) {
	n.hub.BroadcastToUser(ctx, userID, Envelope{
		Type: EventMatchFound,
		Payload: MatchFoundPayload{
			JobID:      jobID,
			TicketType: ticketType,
			Candidates: candidates,
		},
	})
}

// NotifyReviewNeeded reports a pending human-disambiguation question.
func (n *Notifier) NotifyReviewNeeded(
	ctx context.Context,
	userID, jobID, question string,
	options []ReviewOptionPayload,
) {
	n.hub.BroadcastToUser(ctx, userID, Envelope{
		Type: EventReviewNeeded,
		Payload: ReviewNeededPayload{
			JobID:    jobID,
			Question: question,
			Options:  options,
		},
	})
}

// NotifyCompleted reports a successfully finished ingestion job.
func (n *Notifier) NotifyCompleted(
	ctx context.Context,
	userID, jobID string,
	tracksConverted int64,
	albumName, artistName string,
) {
	n.hub.BroadcastToUser(ctx, userID, Envelope{
		Type: EventCompleted,
		Payload: CompletedPayload{
			JobID:           jobID,
			TracksConverted: tracksConverted,
			AlbumName:       albumName,
			ArtistName:      artistName,
		},
	})
}

// NotifyFailed reports a terminally failed ingestion job or download.
func (n *Notifier) NotifyFailed(ctx context.Context, userID, jobID, errorMessage string) {
	n.hub.BroadcastToUser(ctx, userID, Envelope{
		Type:    EventFailed,
		Payload: FailedPayload{JobID: jobID, ErrorMessage: errorMessage},
	})
}

// EmitCatalogEvent broadcasts a catalog invalidation to every connected client.
func (n *Notifier) EmitCatalogEvent(ctx context.Context, kind, entityType, entityID, source string) {
	n.hub.BroadcastAll(ctx, Envelope{
		Type: EventCatalogInvalidate,
		Payload: CatalogEventPayload{
			Kind:       kind,
			EntityType: entityType,
			EntityID:   entityID,
			Source:     source,
		},
	})
}

// NotifyDownloadCompleted reports a finished download to one specific
// requester — the primary requester or an auto-completed duplicate.
func (n *Notifier) NotifyDownloadCompleted(
	ctx context.Context,
	userID, requestID, albumName, artistName string,
	imagesReady bool,
) {
	n.hub.BroadcastToUser(ctx, userID, Envelope{
		Type: EventDownloadCompleted,
		Payload: DownloadCompletedPayload{
			RequestID:   requestID,
			AlbumName:   albumName,
			ArtistName:  artistName,
			ImagesReady: imagesReady,
		},
	})
}
