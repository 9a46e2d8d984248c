package store

import "context"

// Store is the record store contract used by the pipeline, dispatcher, and HTTP surface.
type Store interface {
	// CreateVideo inserts v with status uploading. ID, Title must be set; timestamps are assigned.
	CreateVideo(ctx context.Context, v Video) (*Video, error)
	// UpdateStatus moves the video to status, rejecting illegal transitions with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, status Status) error
	UpdateDuration(ctx context.Context, id string, seconds float64) error
	InsertQuality(ctx context.Context, q Quality) (*Quality, error)
	GetVideo(ctx context.Context, id string) (*Video, error)
	ListVideos(ctx context.Context, filter ListFilter) (ListResult, error)
	// ListQualities returns a video's renditions in insertion order.
	ListQualities(ctx context.Context, videoID string) ([]Quality, error)
	// QualitiesFor batches ListQualities for a page of videos.
	QualitiesFor(ctx context.Context, videoIDs []string) (map[string][]Quality, error)
	// FailInterrupted marks every uploading or processing video as failed and
	// returns the affected identifiers.
	FailInterrupted(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
