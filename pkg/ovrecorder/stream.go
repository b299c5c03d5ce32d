package ovrecorder

import (
	"errors"
	"sync"
	"time"

	"github.com/ov-collective/ovgo/pkg/ovcodec"
	"github.com/ov-collective/ovgo/pkg/ovcontainer"
)

// ErrAlreadyExists is returned by Table.Start when the SSRC already
// has a live entry.
var ErrAlreadyExists = errors.New("ovrecorder: recording already exists for ssrc")

// ErrNotFound is returned when an id does not name a live entry.
var ErrNotFound = errors.New("ovrecorder: recording id not found")

// RecordingInfo describes a recording for signalling and recovery
// purposes.
type RecordingInfo struct {
	ID          string
	Loop        string
	SSRC        uint32
	Filename    string
	StartEpoch  int64
	EndEpoch    int64
}

// StoppedFunc is invoked once when a recording's file is closed,
// either because of a silence timeout, an explicit stop, or a roll.
type StoppedFunc func(info RecordingInfo)

// Params bundles the parameters supplied to Table.Start.
type Params struct {
	ID               string
	SSRC             uint32
	Loop             string
	Root             string
	Ext              string
	Codec            ovcodec.Spec
	FramesToBuffer   int
	FrameSize        int // samples per frame at the codec's native rate
	VAD              VADParams
	SilenceCutoff    int
	RollAfterFrames  int
	OnStopped        StoppedFunc
}

// entry is one live stream's state. All mutation happens under mu,
// taken by the worker processing this entry's frames.
type entry struct {
	mu sync.Mutex

	id     string
	ssrc   uint32
	loop   string
	root   string
	ext    string

	decoder ovcodec.Decoder
	chunker *chunker
	vad     VADParams

	framesToBuffer  int
	silenceCutoff   int
	rollAfterFrames int

	onStopped StoppedFunc

	writer         ovcontainer.Writer
	filename       string
	startEpoch     int64
	silentFrames   int
	framesSinceRoll int
	open           bool

	now func() time.Time
}

func newEntry(p Params) *entry {
	decoder, err := ovcodec.Resolve(p.Codec)
	if err != nil {
		decoder, _ = ovcodec.Resolve(ovcodec.Spec{Name: "pcmu"})
	}
	frameSize := p.FrameSize
	if frameSize == 0 {
		frameSize = decoder.SampleRate() / 50 // 20ms default frame
	}
	return &entry{
		id:              p.ID,
		ssrc:            p.SSRC,
		loop:            p.Loop,
		root:            p.Root,
		ext:             p.Ext,
		decoder:         decoder,
		chunker:         newChunker(frameSize),
		vad:             p.VAD,
		framesToBuffer:  p.FramesToBuffer,
		silenceCutoff:   p.SilenceCutoff,
		rollAfterFrames: p.RollAfterFrames,
		onStopped:       p.OnStopped,
		now:             time.Now,
	}
}

func (e *entry) info() RecordingInfo {
	return RecordingInfo{
		ID:         e.id,
		Loop:       e.loop,
		SSRC:       e.ssrc,
		Filename:   e.filename,
		StartEpoch: e.startEpoch,
	}
}

// closeFile closes the currently open output file (if any), invokes
// the stopped callback, and resets per-recording counters. Caller
// must hold e.mu.
func (e *entry) closeFile() {
	if !e.open {
		return
	}
	e.writer.Close()
	info := e.info()
	info.EndEpoch = e.now().Unix()
	e.open = false
	e.writer = nil
	e.silentFrames = 0
	e.framesSinceRoll = 0
	if e.onStopped != nil {
		e.onStopped(info)
	}
}

// Table is the stream table: every live recording indexed both by
// SSRC (the per-frame hot-path lookup) and by id (stop/list), kept in
// sync under the same lock.
type Table struct {
	mu      sync.RWMutex
	byID    map[string]*entry
	bySSRC  map[uint32]*entry
}

// NewTable creates an empty stream table.
func NewTable() *Table {
	return &Table{
		byID:   make(map[string]*entry),
		bySSRC: make(map[uint32]*entry),
	}
}

// Start creates a new entry for p.ID, rejecting with ErrAlreadyExists
// if the id is already live or p.SSRC (when non-zero) already names a
// live entry. The SSRC for a freshly requested multicast recording is
// not known until the first wire packet for its group arrives; callers
// that don't have it yet pass SSRC: 0 and bind the real value later
// with BindSSRC. A zero SSRC is never inserted into bySSRC, so
// multiple pending entries can coexist without colliding.
func (t *Table) Start(p Params) (RecordingInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byID[p.ID]; exists {
		return RecordingInfo{}, ErrAlreadyExists
	}
	if p.SSRC != 0 {
		if _, exists := t.bySSRC[p.SSRC]; exists {
			return RecordingInfo{}, ErrAlreadyExists
		}
	}

	e := newEntry(p)
	t.byID[e.id] = e
	if e.ssrc != 0 {
		t.bySSRC[e.ssrc] = e
	}
	return e.info(), nil
}

// BindSSRC attaches the real wire SSRC observed on id's multicast
// group to its entry, making it reachable from the per-frame hot path.
// It is idempotent: rebinding to the same SSRC is a no-op. Binding to
// an SSRC already claimed by a different id returns ErrAlreadyExists,
// which happens if two requests end up joining the same group.
func (t *Table) BindSSRC(id string, ssrc uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.byID[id]
	if !ok {
		return ErrNotFound
	}
	if e.ssrc == ssrc {
		return nil
	}
	if existing, exists := t.bySSRC[ssrc]; exists && existing != e {
		return ErrAlreadyExists
	}
	if e.ssrc != 0 {
		delete(t.bySSRC, e.ssrc)
	}
	e.mu.Lock()
	e.ssrc = ssrc
	e.mu.Unlock()
	t.bySSRC[ssrc] = e
	return nil
}

// Stop looks up id, closes any open file, and removes the entry.
func (t *Table) Stop(id string) error {
	t.mu.Lock()
	e, ok := t.byID[id]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	delete(t.byID, id)
	delete(t.bySSRC, e.ssrc)
	t.mu.Unlock()

	e.mu.Lock()
	e.closeFile()
	e.mu.Unlock()
	return nil
}

// entryForSSRC returns the entry for ssrc, or nil if none is live.
// O(1) hot path used by the pipeline for every received RTP frame.
func (t *Table) entryForSSRC(ssrc uint32) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bySSRC[ssrc]
}

// List returns {id: ssrc} for every live recording.
func (t *Table) List() map[string]uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]uint32, len(t.byID))
	for id, e := range t.byID {
		out[id] = e.ssrc
	}
	return out
}

// Shutdown stops every live recording, closing files and invoking
// stopped callbacks.
func (t *Table) Shutdown() {
	t.mu.Lock()
	entries := make([]*entry, 0, len(t.byID))
	for _, e := range t.byID {
		entries = append(entries, e)
	}
	t.byID = make(map[string]*entry)
	t.bySSRC = make(map[uint32]*entry)
	t.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		e.closeFile()
		e.mu.Unlock()
	}
}
