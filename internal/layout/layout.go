// Package layout derives the on-disk namespace that holds every artifact
// produced for one video.
//
// A namespace is rooted at <uploads>/<id> and contains:
//
//	original.mp4
//	hls/master.m3u8
//	hls/<quality>/stream.m3u8
//	hls/<quality>/segment_%03d.ts
//	thumbnails/thumb_%d.jpg
//
// Nothing here touches the filesystem; callers create directories as needed.
package layout

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	OriginalName      = "original.mp4"
	HLSDirName        = "hls"
	MasterName        = "master.m3u8"
	PlaylistName      = "stream.m3u8"
	SegmentPattern    = "segment_%03d.ts"
	ThumbnailsDirName = "thumbnails"
	ThumbnailPattern  = "thumb_%d.jpg"
	// FirstThumbnail is the index ffmpeg's image muxer assigns to the first frame.
	FirstThumbnail = 1
)

// ErrInvalidID reports an identifier that cannot name a namespace.
var ErrInvalidID = errors.New("invalid video id")

// Namespace holds the resolved paths for one video.
type Namespace struct {
	ID   string
	Root string
}

// For returns the namespace for id under uploadsRoot.
func For(uploadsRoot, id string) Namespace {
	return Namespace{ID: id, Root: filepath.Join(uploadsRoot, id)}
}

// Resolve validates id before building its namespace. Only canonical UUIDs are
// accepted so an identifier can never traverse outside uploadsRoot.
func Resolve(uploadsRoot, id string) (Namespace, error) {
	if err := ValidateID(id); err != nil {
		return Namespace{}, err
	}
	return For(uploadsRoot, id), nil
}

// ValidateID reports whether id is a canonical lowercase UUID string.
func ValidateID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func (n Namespace) Original() string { return filepath.Join(n.Root, OriginalName) }

func (n Namespace) HLSDir() string { return filepath.Join(n.Root, HLSDirName) }

func (n Namespace) Master() string { return filepath.Join(n.HLSDir(), MasterName) }

func (n Namespace) QualityDir(quality string) string {
	return filepath.Join(n.HLSDir(), quality)
}

func (n Namespace) QualityPlaylist(quality string) string {
	return filepath.Join(n.QualityDir(quality), PlaylistName)
}

// SegmentPattern is the printf-style template handed to the encoder.
func (n Namespace) SegmentPattern(quality string) string {
	return filepath.Join(n.QualityDir(quality), SegmentPattern)
}

func (n Namespace) ThumbnailsDir() string { return filepath.Join(n.Root, ThumbnailsDirName) }

func (n Namespace) ThumbnailPattern() string {
	return filepath.Join(n.ThumbnailsDir(), ThumbnailPattern)
}

// RelativePlaylist is the namespace-relative playlist path persisted on
// quality records. It always uses forward slashes.
func RelativePlaylist(quality string) string {
	return path.Join(HLSDirName, quality, PlaylistName)
}

// MasterEntry is the master-relative URI of a rendition playlist.
func MasterEntry(quality string) string {
	return path.Join(quality, PlaylistName)
}

// StreamURL and ThumbnailURL return public URLs for artifacts served under prefix.
func StreamURL(prefix, id string) string {
	return joinURL(prefix, id, HLSDirName, MasterName)
}

func ThumbnailURL(prefix, id string) string {
	return joinURL(prefix, id, ThumbnailsDirName, fmt.Sprintf(ThumbnailPattern, FirstThumbnail))
}

func joinURL(prefix string, parts ...string) string {
	prefix = "/" + strings.Trim(prefix, "/")
	return path.Join(append([]string{prefix}, parts...)...)
}
