package store

import "time"

// Status represents the lifecycle of a video.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// InterruptedReason is logged when startup recovery fails a record that a
// previous process left mid-flight.
const InterruptedReason = "interrupted by restart"

var transitions = map[Status][]Status{
	StatusUploading:  {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusProcessed, StatusFailed},
}

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusUploading, StatusProcessing, StatusProcessed, StatusFailed}
}

// ParseStatus validates a status string.
func ParseStatus(value string) (Status, bool) {
	for _, s := range AllStatuses() {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// allowedSources returns the statuses from which to may be entered.
func allowedSources(to Status) []Status {
	var out []Status
	for from, nexts := range transitions {
		for _, next := range nexts {
			if next == to {
				out = append(out, from)
			}
		}
	}
	return out
}

// Video is the persisted record for one upload.
type Video struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Duration is nil until the probe succeeds.
	Duration  *float64  `json:"duration"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Quality is one successfully produced rendition.
type Quality struct {
	ID         string `json:"id"`
	VideoID    string `json:"video_id"`
	Resolution string `json:"resolution"`
	Bitrate    string `json:"bitrate"`
	// FilePath is namespace-relative, e.g. "hls/720p/stream.m3u8".
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter selects and pages videos. Results are ordered newest first.
type ListFilter struct {
	Statuses []Status
	Offset   int
	Limit    int
}

// ListResult is one page of videos plus the total matching the filter.
type ListResult struct {
	Videos []Video
	Total  int
}
