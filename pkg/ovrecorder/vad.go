package ovrecorder

import "math"

// VADParams configures voice-activity detection over a leading window
// of PCM samples. Either threshold set to 0 bypasses detection
// entirely, reporting voice always present.
type VADParams struct {
	ZeroCrossingThreshold float64 // crossings per second
	PowerThresholdDBFS    float64 // negative dBFS, e.g. -45
}

// Bypassed reports whether either threshold is zero, in which case
// voice is always considered present.
func (p VADParams) Bypassed() bool {
	return p.ZeroCrossingThreshold == 0 || p.PowerThresholdDBFS == 0
}

// DetectVoice evaluates zero-crossing rate and RMS power (as dBFS)
// over a fixed-duration PCM window and reports whether voice is
// present. sampleRate is used to scale the raw crossing count to a
// per-second rate; a single caller-chosen window (conventionally 20ms)
// is passed as window.
func DetectVoice(window []int16, sampleRate int, params VADParams) bool {
	if params.Bypassed() {
		return true
	}
	if len(window) == 0 {
		return false
	}

	zcr := zeroCrossingRate(window, sampleRate)
	dbfs := powerDBFS(window)

	zcrVoice := params.ZeroCrossingThreshold == 0 || zcr >= params.ZeroCrossingThreshold
	powerVoice := params.PowerThresholdDBFS == 0 || dbfs >= params.PowerThresholdDBFS
	return zcrVoice && powerVoice
}

// zeroCrossingRate counts sign changes between consecutive samples and
// scales the count to crossings-per-second given the window's
// duration at sampleRate.
func zeroCrossingRate(window []int16, sampleRate int) float64 {
	if len(window) < 2 || sampleRate == 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(window); i++ {
		if (window[i-1] >= 0) != (window[i] >= 0) {
			crossings++
		}
	}
	durationSecs := float64(len(window)) / float64(sampleRate)
	return float64(crossings) / durationSecs
}

// powerDBFS computes the RMS power of window expressed in dBFS
// relative to the full 16-bit signed scale. Silence maps to -inf;
// callers compare against a negative threshold so -inf never passes.
func powerDBFS(window []int16) float64 {
	var sumSquares float64
	for _, s := range window {
		v := float64(s)
		sumSquares += v * v
	}
	rms := math.Sqrt(sumSquares / float64(len(window)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/32768.0)
}
