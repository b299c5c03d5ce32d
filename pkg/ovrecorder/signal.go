package ovrecorder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/ov-collective/ovgo/pkg/ovcodec"
	"github.com/ov-collective/ovgo/pkg/ovio"
)

// envelope mirrors the websocket JSON event wire shape used across the
// reactor: {event, parameter|request|response, uuid, error}. The
// signalling connection to the resource manager speaks the same
// envelope, newline-delimited, over a plain outbound connection
// instead of websocket frames.
type envelope struct {
	Event     string          `json:"event"`
	UUID      string          `json:"uuid,omitempty"`
	Parameter json.RawMessage `json:"parameter,omitempty"`
	Request   json.RawMessage `json:"request,omitempty"`
	Response  json.RawMessage `json:"response,omitempty"`
	Error     *eventError     `json:"error,omitempty"`
}

type eventError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type startRecordRequest struct {
	McIP          string `json:"mc_ip"`
	McPort        int    `json:"mc_port"`
	Loop          string `json:"loop"`
	RollAfterSecs int    `json:"roll_after_secs"`
	ID            string `json:"id"`
}

type stopRecordRequest struct {
	ID string `json:"id"`
}

// mcastReceiver is the subset of *McastReceiver the adapter depends on,
// narrowed so tests can substitute a fake that never touches the
// network.
type mcastReceiver interface {
	Run()
	Close() error
}

// joinFunc joins a per-request multicast group and wires it to bind
// id's entry once traffic starts flowing. Overridable for tests.
type joinFunc func(address string, table *Table, id string, pool *WorkerPool, logger *slog.Logger) (mcastReceiver, error)

func defaultJoin(address string, table *Table, id string, pool *WorkerPool, logger *slog.Logger) (mcastReceiver, error) {
	return ListenMulticastForRecording(address, table, id, pool, logger)
}

// Adapter is the signalling adapter: it owns an auto-reconnecting
// outbound connection to a resource manager, registers on connect, and
// translates start_record/stop_record/list_running_recordings/shutdown
// events into Table/Pipeline calls. It emits notify_new_recording when
// a file closes.
type Adapter struct {
	reactor *ovio.Reactor
	table   *Table
	pool    *WorkerPool
	logger  *slog.Logger

	uuid string

	root          string
	ext           string
	frameSize     int
	framesToBuf   int
	silenceCutoff int
	vad           VADParams

	join joinFunc

	mu        sync.Mutex
	connID    uint64
	buf       []byte
	receivers map[string]mcastReceiver

	shuttingDown      atomic.Bool
	onShutdown        func()
	onRecordingClosed func()
}

// Config bundles the adapter's recorder-side defaults (the values a
// start_record request does not override).
type Config struct {
	Root                string
	Ext                 string
	FrameSize           int
	FramesToBuffer      int
	SilenceCutoffFrames int
	VAD                 VADParams
}

// NewAdapter creates an adapter bound to reactor, table, and pool. pool
// receives frames from every multicast group this adapter joins on
// start_record. onShutdown is invoked (once) when a shutdown event is
// received, after any live recordings are stopped; callers typically
// use it to exit the process.
func NewAdapter(reactor *ovio.Reactor, table *Table, pool *WorkerPool, cfg Config, logger *slog.Logger, onShutdown func()) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		reactor:       reactor,
		table:         table,
		pool:          pool,
		logger:        logger,
		uuid:          uuid.NewString(),
		root:          cfg.Root,
		ext:           cfg.Ext,
		frameSize:     cfg.FrameSize,
		framesToBuf:   cfg.FramesToBuffer,
		silenceCutoff: cfg.SilenceCutoffFrames,
		vad:           cfg.VAD,
		join:          defaultJoin,
		receivers:     make(map[string]mcastReceiver),
		onShutdown:    onShutdown,
	}
}

// OnRecordingClosed registers fn to be called every time a recording's
// file closes, in addition to the notify_new_recording signalling
// event. Typically wired to a metrics counter.
func (a *Adapter) OnRecordingClosed(fn func()) {
	a.onRecordingClosed = fn
}

// Connect dials the resource manager at address with auto-reconnect
// enabled, registering on every successful (re)connect.
func (a *Adapter) Connect(network, address string) error {
	h := ovio.Handlers{
		Connected: a.onConnected,
		IO:        a.onData,
		Close:     a.onClose,
	}
	_, err := a.reactor.Connect(ovio.Target{Network: network, Address: address}, nil, h, true)
	if err != nil && err != ovio.ErrPending {
		return err
	}
	return nil
}

func (a *Adapter) onConnected(c *ovio.Connection) {
	a.mu.Lock()
	a.connID = c.GetID()
	a.buf = nil
	a.mu.Unlock()

	a.sendEvent("register", "", map[string]any{"type": "recorder", "uuid": a.uuid})
}

func (a *Adapter) onClose(c *ovio.Connection, err error) {
	a.mu.Lock()
	if a.connID == c.GetID() {
		a.connID = 0
	}
	a.mu.Unlock()
}

func (a *Adapter) onData(c *ovio.Connection, data []byte) {
	a.mu.Lock()
	a.buf = append(a.buf, data...)
	buf := a.buf
	a.mu.Unlock()

	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		line := buf[:idx]
		buf = buf[idx+1:]
		if len(bytes.TrimSpace(line)) > 0 {
			a.handleLine(line)
		}
	}

	a.mu.Lock()
	a.buf = append([]byte(nil), buf...)
	a.mu.Unlock()
}

func (a *Adapter) handleLine(line []byte) {
	if !gjson.ValidBytes(line) {
		a.logger.Warn("signalling payload is not valid JSON, dropping")
		return
	}
	result := gjson.ParseBytes(line)
	event := result.Get("event").String()
	requestUUID := result.Get("uuid").String()
	param := firstGjsonPresent(result, "request", "parameter", "response")

	switch event {
	case "start_record":
		a.handleStartRecord(requestUUID, param)
	case "stop_record":
		a.handleStopRecord(requestUUID, param)
	case "list_running_recordings":
		a.handleListRunning(requestUUID)
	case "shutdown":
		a.handleShutdown(requestUUID)
	default:
		a.logger.Warn("unknown signalling event, dropping", "event", event)
	}
}

func firstGjsonPresent(result gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := result.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// handleStartRecord starts a pending table entry for the request (its
// real SSRC isn't known yet, only its multicast group) and joins that
// group. Each request gets its own receiver on its own group; the
// first wire packet observed there binds the table entry's SSRC. If
// the join fails the table entry is rolled back so it doesn't linger
// unreachable from the per-frame hot path.
func (a *Adapter) handleStartRecord(requestUUID string, param gjson.Result) {
	var req startRecordRequest
	if err := json.Unmarshal([]byte(param.Raw), &req); err != nil {
		a.sendError("start_record", requestUUID, 400, "malformed start_record request")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	loop := req.Loop
	if loop == "" {
		loop = "default"
	}

	info, err := a.table.Start(Params{
		ID:              req.ID,
		SSRC:            0,
		Loop:            loop,
		Root:            a.root,
		Ext:             a.ext,
		Codec:           defaultCodecSpec(),
		FramesToBuffer:  a.framesToBuf,
		FrameSize:       a.frameSize,
		VAD:             a.vad,
		SilenceCutoff:   a.silenceCutoff,
		RollAfterFrames: secsToFrames(req.RollAfterSecs, a.frameSize),
		OnStopped:       a.notifyStopped,
	})
	if err != nil {
		a.sendError("start_record", requestUUID, 409, err.Error())
		return
	}

	address := fmt.Sprintf("%s:%d", req.McIP, req.McPort)
	receiver, err := a.join(address, a.table, req.ID, a.pool, a.logger)
	if err != nil {
		a.table.Stop(req.ID)
		a.sendError("start_record", requestUUID, 500, fmt.Sprintf("join multicast group: %s", err))
		return
	}
	a.mu.Lock()
	a.receivers[req.ID] = receiver
	a.mu.Unlock()
	go receiver.Run()

	a.sendEvent("start_record", requestUUID, map[string]any{
		"id":       info.ID,
		"filename": info.Filename,
	})
}

func (a *Adapter) handleStopRecord(requestUUID string, param gjson.Result) {
	var req stopRecordRequest
	if err := json.Unmarshal([]byte(param.Raw), &req); err != nil {
		a.sendError("stop_record", requestUUID, 400, "malformed stop_record request")
		return
	}
	if err := a.table.Stop(req.ID); err != nil {
		a.sendError("stop_record", requestUUID, 404, err.Error())
		return
	}
	// Stop only notifies via OnStopped if a file was ever opened (an
	// idle pending recording never triggers it); close the receiver
	// unconditionally so a stopped-before-any-voice group doesn't leak.
	a.closeReceiver(req.ID)
	a.sendEvent("stop_record", requestUUID, map[string]any{"id": req.ID})
}

func (a *Adapter) handleListRunning(requestUUID string) {
	a.sendEvent("list_running_recordings", requestUUID, a.table.List())
}

func (a *Adapter) handleShutdown(requestUUID string) {
	if a.shuttingDown.Swap(true) {
		return
	}
	a.table.Shutdown()

	a.mu.Lock()
	receivers := a.receivers
	a.receivers = make(map[string]mcastReceiver)
	a.mu.Unlock()
	for _, r := range receivers {
		r.Close()
	}

	a.sendEvent("shutdown", requestUUID, map[string]any{"status": "ok"})
	if a.onShutdown != nil {
		a.onShutdown()
	}
}

// closeReceiver closes and forgets the multicast receiver joined for
// id, if any. No-op once an id's receiver has already been closed.
func (a *Adapter) closeReceiver(id string) {
	a.mu.Lock()
	r, ok := a.receivers[id]
	delete(a.receivers, id)
	a.mu.Unlock()
	if ok {
		r.Close()
	}
}

// notifyStopped is the Table entry OnStopped callback: it reports a
// closed recording file to the resource manager. The multicast receiver
// stays joined, so ingestion continues after a silence cutoff or roll;
// stop_record and shutdown close it.
func (a *Adapter) notifyStopped(info RecordingInfo) {
	a.sendEvent("notify_new_recording", "", map[string]any{
		"id":          info.ID,
		"loop":        info.Loop,
		"filename":    info.Filename,
		"start_epoch": info.StartEpoch,
		"end_epoch":   info.EndEpoch,
	})
	if a.onRecordingClosed != nil {
		a.onRecordingClosed()
	}
}

func (a *Adapter) sendEvent(event, requestUUID string, parameter any) {
	env := envelope{Event: event, UUID: requestUUID}
	raw, err := json.Marshal(parameter)
	if err != nil {
		return
	}
	env.Parameter = raw

	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	body = append(body, '\n')

	a.mu.Lock()
	id := a.connID
	a.mu.Unlock()
	if id == 0 {
		return
	}
	a.reactor.Send(id, body)
}

func (a *Adapter) sendError(event, requestUUID string, code int, message string) {
	env := envelope{Event: event, UUID: requestUUID, Error: &eventError{Code: code, Message: message}}
	body, err := json.Marshal(env)
	if err != nil {
		return
	}
	body = append(body, '\n')

	a.mu.Lock()
	id := a.connID
	a.mu.Unlock()
	if id == 0 {
		return
	}
	a.reactor.Send(id, body)
}

// defaultCodecSpec is used when a start_record request does not
// negotiate a codec explicitly; the signalling wire contract only
// carries multicast address/port and loop naming, not a codec spec, so
// mu-law at the conventional telephony rate is assumed.
func defaultCodecSpec() ovcodec.Spec {
	return ovcodec.Spec{Name: "pcmu", SampleRate: 8000}
}

// secsToFrames converts a roll-after duration in seconds to a frame
// count assuming 20ms frames (50 per second), the frame length a table
// entry uses when FrameSize is 0; frameSize is not consulted. 0 means
// rolling is disabled.
func secsToFrames(secs, frameSize int) int {
	if secs <= 0 {
		return 0
	}
	return secs * 50
}
