// Package ovrecorder implements the multicast RTP recorder: a stream
// table keyed by SSRC and recording id, a decode/chunk/VAD/write
// pipeline, a bounded worker pool that feeds it, path naming, and a
// signalling adapter that exposes start/stop/list as newline-delimited
// JSON over an outbound ovio connection.
package ovrecorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RecordingFilePath builds the on-disk path for a recording:
// <root>/<loop>/<loop>_<epoch>_<id>.<ext>, creating the loop directory
// if it does not already exist.
func RecordingFilePath(root, loop string, now time.Time, id, ext string) (string, error) {
	dir := filepath.Join(root, loop)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create loop directory %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%d_%s.%s", loop, now.Unix(), id, ext)
	return filepath.Join(dir, name), nil
}

// ParsedName is the result of inverting RecordingFilePath on a bare
// filename (no directory component).
type ParsedName struct {
	Loop  string
	Epoch int64
	ID    string
	Ext   string
}

// ParseRecordingFileName recovers {loop, epoch, id, ext} from a
// filename of the form "<loop>_<epoch>_<id>.<ext>". The loop name
// itself may contain underscores; epoch and id are taken from the
// last two underscore-separated fields before the extension.
func ParseRecordingFileName(name string) (ParsedName, error) {
	ext := filepath.Ext(name)
	if ext == "" {
		return ParsedName{}, fmt.Errorf("recording filename %q has no extension", name)
	}
	base := strings.TrimSuffix(name, ext)
	ext = strings.TrimPrefix(ext, ".")

	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return ParsedName{}, fmt.Errorf("recording filename %q does not match <loop>_<epoch>_<id>", name)
	}

	id := parts[len(parts)-1]
	epochStr := parts[len(parts)-2]
	loop := strings.Join(parts[:len(parts)-2], "_")

	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil {
		return ParsedName{}, fmt.Errorf("recording filename %q has non-numeric epoch field: %w", name, err)
	}

	return ParsedName{Loop: loop, Epoch: epoch, ID: id, Ext: ext}, nil
}

// RecoveredRecording describes a recording file found on disk by Scan
// at process start.
type RecoveredRecording struct {
	Path string
	ParsedName
}

// Scan walks root's immediate loop subdirectories and returns every
// recording file found, parsed via ParseRecordingFileName. Files whose
// name does not parse are skipped. Used at startup to list the
// recordings already on disk; it does not tell files whose closure was
// reported apart from files left behind by an unclean shutdown.
func Scan(root string) ([]RecoveredRecording, error) {
	var out []RecoveredRecording

	loopDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan recordings root %s: %w", root, err)
	}

	for _, loopDir := range loopDirs {
		if !loopDir.IsDir() {
			continue
		}
		loopPath := filepath.Join(root, loopDir.Name())
		entries, err := os.ReadDir(loopPath)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			parsed, err := ParseRecordingFileName(e.Name())
			if err != nil {
				continue
			}
			out = append(out, RecoveredRecording{
				Path:       filepath.Join(loopPath, e.Name()),
				ParsedName: parsed,
			})
		}
	}
	return out, nil
}
