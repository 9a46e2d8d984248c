// Package hls owns the fixed adaptive-bitrate ladder and the master playlist
// that advertises whichever renditions were produced.
package hls
