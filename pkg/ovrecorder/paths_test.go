package ovrecorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordingFilePathCreatesLoopDir(t *testing.T) {
	root := t.TempDir()
	now := time.Unix(1700000000, 0)

	path, err := RecordingFilePath(root, "loopA", now, "abc-123", "wav")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "loopA", "loopA_1700000000_abc-123.wav"), path)

	_, statErr := os.Stat(filepath.Join(root, "loopA"))
	require.NoError(t, statErr)
}

func TestParseRecordingFileNameRoundTrip(t *testing.T) {
	parsed, err := ParseRecordingFileName("loopA_1700000000_abc-123.wav")
	require.NoError(t, err)
	require.Equal(t, ParsedName{Loop: "loopA", Epoch: 1700000000, ID: "abc-123", Ext: "wav"}, parsed)
}

func TestParseRecordingFileNameWithUnderscoreInLoop(t *testing.T) {
	parsed, err := ParseRecordingFileName("north_gate_1700000000_abc-123.ogg")
	require.NoError(t, err)
	require.Equal(t, "north_gate", parsed.Loop)
	require.Equal(t, int64(1700000000), parsed.Epoch)
	require.Equal(t, "abc-123", parsed.ID)
	require.Equal(t, "ogg", parsed.Ext)
}

func TestParseRecordingFileNameRejectsMalformed(t *testing.T) {
	_, err := ParseRecordingFileName("notarecording")
	require.Error(t, err)
}

func TestScanRecoversUncataloguedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "loopA"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "loopA", "loopA_1700000000_abc-123.wav"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "loopA", "garbage.txt"), []byte("x"), 0o644))

	found, err := Scan(root)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "abc-123", found[0].ID)
}

func TestScanOnMissingRootReturnsEmpty(t *testing.T) {
	found, err := Scan(filepath.Join(t.TempDir(), "nonexistent"))
	require.NoError(t, err)
	require.Nil(t, found)
}
