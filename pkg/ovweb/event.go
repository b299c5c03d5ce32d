package ovweb

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// EventHandler handles one dispatched JSON event. parameter is whichever
// of "parameter", "request", or "response" the envelope carried — three
// equivalent field names accepted on the wire.
//
// The handler signature carries an explicit userdata argument, matching
// the registration call rather than a bare name-to-func mapping.
type EventHandler func(ctx context.Context, userdata any, s *Socket, parameter gjson.Result) error

// EventEngine is the name→handler registry used by the JSON/event
// adapter. Lookup is an O(1) map read.
type EventEngine struct {
	mu       sync.RWMutex
	handlers map[string]eventEntry
	logger   *slog.Logger
}

type eventEntry struct {
	handler  EventHandler
	userdata any
}

// NewEventEngine creates an empty EventEngine.
func NewEventEngine(logger *slog.Logger) *EventEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventEngine{handlers: make(map[string]eventEntry), logger: logger}
}

// Push registers handler for event, associated with userdata.
func (e *EventEngine) Push(event string, userdata any, handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = eventEntry{handler: handler, userdata: userdata}
}

// Unpush removes event's registration, if any.
func (e *EventEngine) Unpush(event string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Dispatch parses raw as a JSON event envelope ({"event": ..., ...}),
// looks up the handler by name, and invokes it. An unknown event name is
// dropped with a warning, not an error: the connection stays open.
func (e *EventEngine) Dispatch(ctx context.Context, s *Socket, raw []byte) {
	if !gjson.ValidBytes(raw) {
		e.logger.Warn("event payload is not valid JSON, dropping", "conn", s.ConnID())
		return
	}

	result := gjson.ParseBytes(raw)
	name := result.Get("event").String()
	if name == "" {
		e.logger.Warn("event payload missing \"event\" field, dropping", "conn", s.ConnID())
		return
	}

	e.mu.RLock()
	entry, ok := e.handlers[name]
	e.mu.RUnlock()
	if !ok {
		e.logger.Warn("unknown event, dropping", "event", name, "conn", s.ConnID())
		return
	}

	parameter := firstPresent(result, "parameter", "request", "response")
	uuid := result.Get("uuid").String()

	if err := entry.handler(ctx, entry.userdata, s, parameter); err != nil {
		sendErrorResponse(s, name, uuid, err)
	}
}

func firstPresent(result gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := result.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// EventError is the wire shape of a failed event response.
type EventError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func sendErrorResponse(s *Socket, event, uuid string, err error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "event", event)
	if uuid != "" {
		body, _ = sjson.SetBytes(body, "uuid", uuid)
	}
	body, _ = sjson.SetBytes(body, "error.code", 1)
	body, _ = sjson.SetBytes(body, "error.message", err.Error())
	s.SendJSON(body)
}

// SendEvent serialises an event envelope {"event", "uuid"?, "parameter"}
// and sends it as JSON over the socket (used both for outbound server
// pushes and for responses).
func SendEvent(s *Socket, event, uuid string, parameter any) bool {
	env := map[string]any{"event": event}
	if uuid != "" {
		env["uuid"] = uuid
	}
	if parameter != nil {
		env["parameter"] = parameter
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return s.SendJSON(raw)
}
