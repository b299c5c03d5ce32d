// Package ovcontainer implements the output containers the recorder
// pipeline writes decoded PCM into once voice is detected: WAV and a
// minimal Ogg framing. Each container is a small capability interface
// composed by value, not a type hierarchy.
package ovcontainer

import "fmt"

// Writer is the capability set every output container implements:
// WriteChunk appends one frame's worth of PCM, Close finalises the file
// (patching any header fields that depend on total size) and reports
// how many samples were written.
type Writer interface {
	WriteChunk(pcm []int16) error
	Close() (samplesWritten int64, err error)
}

// Open creates a new output file at path for the given extension and
// sample rate. ext is one of "wav", "ogg", or "opus".
func Open(path string, ext string, sampleRate int) (Writer, error) {
	switch ext {
	case "wav":
		return newWAVWriter(path, sampleRate)
	case "ogg", "opus":
		return newOggWriter(path, sampleRate)
	default:
		return nil, fmt.Errorf("unsupported container extension %q", ext)
	}
}
