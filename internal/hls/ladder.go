package hls

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentSeconds is the target HLS segment duration.
const SegmentSeconds = 6

// AudioBitrate is applied to every rendition.
const AudioBitrate = "128k"

// Rendition is one rung of the ladder.
type Rendition struct {
	Label   string
	Bitrate string
	Width   int
	Height  int
}

// Resolution renders the frame size as WIDTHxHEIGHT.
func (r Rendition) Resolution() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Bandwidth returns the advertised peak bitrate in bits per second.
func (r Rendition) Bandwidth() int {
	kbps, err := ParseBitrate(r.Bitrate)
	if err != nil {
		return 0
	}
	return kbps * 1000
}

var ladder = []Rendition{
	{Label: "1080p", Bitrate: "5000k", Width: 1920, Height: 1080},
	{Label: "720p", Bitrate: "2800k", Width: 1280, Height: 720},
	{Label: "480p", Bitrate: "1400k", Width: 854, Height: 480},
	{Label: "360p", Bitrate: "800k", Width: 640, Height: 360},
}

// Ladder returns the renditions in encode order, highest first.
func Ladder() []Rendition {
	out := make([]Rendition, len(ladder))
	copy(out, ladder)
	return out
}

// Lookup returns the ladder entry for label.
func Lookup(label string) (Rendition, bool) {
	for _, r := range ladder {
		if r.Label == label {
			return r, true
		}
	}
	return Rendition{}, false
}

// ParseBitrate converts a "<n>k" bitrate string to kilobits per second.
func ParseBitrate(value string) (int, error) {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(value)), "k")
	n, err := strconv.Atoi(trimmed)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid bitrate %q", value)
	}
	return n, nil
}

// GOPSize returns the keyframe interval in frames for the given segment
// duration. Fixed, scene-cut-free GOPs keep segment boundaries aligned across
// renditions.
func GOPSize(segmentSeconds int) int {
	return segmentSeconds * 8
}
