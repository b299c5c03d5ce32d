package ovcontainer

import (
	"encoding/binary"
	"fmt"
	"os"
)

// wavWriter writes a standard 16-bit PCM mono RIFF/WAVE file. No
// ecosystem WAV encoder is worth pulling in for a fixed, well-known
// header layout (see DESIGN.md), so this uses encoding/binary
// directly, the way fixed-size binary structures are built elsewhere
// in this codebase.
type wavWriter struct {
	f          *os.File
	sampleRate int
	samples    int64
}

const wavHeaderLen = 44

func newWAVWriter(path string, sampleRate int) (*wavWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create wav file: %w", err)
	}

	w := &wavWriter{f: f, sampleRate: sampleRate}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *wavWriter) writeHeader() error {
	header := make([]byte, wavHeaderLen)
	copy(header[0:4], "RIFF")
	// bytes 4:8 (RIFF chunk size) patched on Close
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)   // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1)   // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(w.sampleRate))
	byteRate := uint32(w.sampleRate) * 2
	binary.LittleEndian.PutUint32(header[28:32], byteRate)
	binary.LittleEndian.PutUint16(header[32:34], 2) // block align
	binary.LittleEndian.PutUint16(header[34:36], 16) // bits per sample
	copy(header[36:40], "data")
	// bytes 40:44 (data chunk size) patched on Close

	_, err := w.f.Write(header)
	return err
}

func (w *wavWriter) WriteChunk(pcm []int16) error {
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	if _, err := w.f.Write(buf); err != nil {
		return err
	}
	w.samples += int64(len(pcm))
	return nil
}

func (w *wavWriter) Close() (int64, error) {
	dataBytes := w.samples * 2
	if _, err := w.f.WriteAt(u32le(uint32(dataBytes+36)), 4); err != nil {
		w.f.Close()
		return w.samples, err
	}
	if _, err := w.f.WriteAt(u32le(uint32(dataBytes)), 40); err != nil {
		w.f.Close()
		return w.samples, err
	}
	return w.samples, w.f.Close()
}

func u32le(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
