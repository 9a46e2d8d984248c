package hls

import (
	"bytes"
	"fmt"
	"sync"

	"vodpipe/internal/fileutil"
	"vodpipe/internal/layout"
)

const masterHeader = "#EXTM3U\n#EXT-X-VERSION:3\n"

// Master accumulates successful renditions in the order they finish.
type Master struct {
	mu      sync.Mutex
	entries []Rendition
}

// NewMaster returns an empty playlist.
func NewMaster() *Master {
	return &Master{}
}

// Add records a successfully encoded rendition.
func (m *Master) Add(r Rendition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, r)
}

// Len reports how many renditions have been added.
func (m *Master) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Renditions returns a copy of the accumulated entries.
func (m *Master) Renditions() []Rendition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rendition, len(m.entries))
	copy(out, m.entries)
	return out
}

// Bytes renders the playlist. An empty playlist is just the header.
func (m *Master) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	buf.WriteString(masterHeader)
	for _, r := range m.entries {
		fmt.Fprintf(&buf, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s\n", r.Bandwidth(), r.Resolution())
		buf.WriteString(layout.MasterEntry(r.Label))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteFile replaces path with the rendered playlist atomically.
func (m *Master) WriteFile(path string) error {
	if err := fileutil.WriteFileAtomic(path, m.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write master playlist: %w", err)
	}
	return nil
}
