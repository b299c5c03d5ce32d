package ovmetrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerServesExpositionFormat(t *testing.T) {
	m := New()
	m.SetRecordingsOpen(3)
	m.IncFramesDropped()
	m.IncRecordingsClosed()
	m.IncLogRotations()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "ov_recordings_open 3")
	require.Contains(t, body, "ov_recorder_frames_dropped_total 1")
	require.Contains(t, body, "ov_recordings_closed_total 1")
	require.Contains(t, body, "ov_log_rotations_total 1")
}
