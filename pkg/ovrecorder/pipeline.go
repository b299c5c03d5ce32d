package ovrecorder

import (
	"fmt"
	"time"

	"github.com/ov-collective/ovgo/pkg/ovcontainer"
	"github.com/ov-collective/ovgo/pkg/ovrtp"
)

// Pipeline runs the decode -> chunk -> VAD -> write steps for RTP
// frames dispatched by the worker pool, against a shared stream table.
type Pipeline struct {
	table *Table
	now   func() time.Time
}

// NewPipeline creates a pipeline bound to table.
func NewPipeline(table *Table) *Pipeline {
	return &Pipeline{table: table, now: time.Now}
}

// ProcessFrame runs one RTP packet through the per-SSRC pipeline. It
// takes the entry's lock itself, so it is safe to call concurrently;
// keeping frames of the same SSRC in order is the caller's concern (the
// worker pool does this by routing a given SSRC to a single worker's
// queue).
func (p *Pipeline) ProcessFrame(ssrc uint32, payload []byte, seq uint16) error {
	e := p.table.entryForSSRC(ssrc)
	if e == nil {
		return nil // step 1: no entry, drop silently
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pcm, err := e.decoder.Decode(seq, payload)
	if err != nil {
		return fmt.Errorf("decode rtp payload for ssrc %d: %w", ssrc, err)
	}
	e.chunker.append(pcm)

	if e.chunker.frames() < e.framesToBuffer {
		return nil // step 4: still filling the look-ahead window
	}

	voice := DetectVoice(e.chunker.peekWindow(), e.decoder.SampleRate(), e.vad)
	frame := e.chunker.popFrame()

	switch {
	case !e.open && !voice:
		// idle, discard
	case !e.open && voice:
		if err := p.openFile(e); err != nil {
			return err
		}
		if err := e.writer.WriteChunk(frame); err != nil {
			e.closeFile()
			return fmt.Errorf("write recording %s: %w", e.id, err)
		}
		e.silentFrames = 0
	case e.open && voice:
		if err := e.writer.WriteChunk(frame); err != nil {
			e.closeFile()
			return fmt.Errorf("write recording %s: %w", e.id, err)
		}
		e.silentFrames = 0
	case e.open && !voice:
		e.silentFrames++
		if err := e.writer.WriteChunk(frame); err != nil {
			e.closeFile()
			return fmt.Errorf("write recording %s: %w", e.id, err)
		}
		if e.silentFrames > e.silenceCutoff {
			e.closeFile()
		}
	}

	if e.open && e.rollAfterFrames > 0 {
		e.framesSinceRoll++
		if e.framesSinceRoll > e.rollAfterFrames {
			e.closeFile()
		}
	}

	return nil
}

func (p *Pipeline) openFile(e *entry) error {
	now := p.now()
	path, err := RecordingFilePath(e.root, e.loop, now, e.id, e.ext)
	if err != nil {
		return fmt.Errorf("open recording for %s: %w", e.id, err)
	}
	w, err := ovcontainer.Open(path, e.ext, e.decoder.SampleRate())
	if err != nil {
		return fmt.Errorf("open container %s: %w", path, err)
	}
	e.writer = w
	e.filename = path
	e.startEpoch = now.Unix()
	e.open = true
	return nil
}

// RTPEnvelope pairs an already-parsed RTP header with its raw payload.
// The worker pool does not use it; it takes Message values.
type RTPEnvelope struct {
	Header  ovrtp.Header
	Payload []byte
}
