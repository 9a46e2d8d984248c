package logging

import "strings"

// FormatSubject builds the "Video <id> (stage)" prefix used in console output.
// Identifiers are shortened to their first eight characters.
func FormatSubject(videoID, stage string) string {
	videoID = strings.TrimSpace(videoID)
	stage = strings.TrimSpace(stage)
	if len(videoID) > 8 {
		videoID = videoID[:8]
	}
	switch {
	case videoID != "" && stage != "":
		return "Video " + videoID + " (" + stage + ")"
	case videoID != "":
		return "Video " + videoID
	default:
		return stage
	}
}
