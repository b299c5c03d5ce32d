// Package ovcodec defines the pluggable decode interface the recorder
// pipeline consumes and a small built-in set of reference codecs.
package ovcodec

import "fmt"

// Decoder turns one RTP payload into PCM samples (16-bit signed, mono,
// native codec sample rate). Implementations are called from a single
// goroutine at a time; the caller is responsible for serialising access
// per stream.
type Decoder interface {
	// Decode decodes one payload, given its RTP sequence number (used by
	// codecs that need to detect loss/reordering; reference codecs here
	// ignore it).
	Decode(seq uint16, payload []byte) ([]int16, error)
	// SampleRate is the decoder's native PCM sample rate in Hz.
	SampleRate() int
}

// Spec names a codec and its parameters. The recorder's start_record
// request carries no codec spec; the recorder always uses pcmu at 8000 Hz.
type Spec struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Resolve builds a Decoder for spec. Unknown codec names are an error;
// the recorder's stream table falls back to pcmu when Resolve fails.
func Resolve(spec Spec) (Decoder, error) {
	rate := spec.SampleRate
	if rate == 0 {
		rate = 8000
	}

	switch spec.Name {
	case "", "pcmu", "g711u":
		return &muLawDecoder{rate: rate}, nil
	case "pcma", "g711a":
		return &aLawDecoder{rate: rate}, nil
	case "l16", "linear16":
		return &linear16Decoder{rate: rate}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", spec.Name)
	}
}
