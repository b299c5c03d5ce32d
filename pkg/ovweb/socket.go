package ovweb

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ov-collective/ovgo/pkg/ovio"
)

// Mode is which incremental parser a Socket currently feeds.
type Mode int

const (
	ModeHTTP Mode = iota
	ModeWebsocket
)

// Socket is the per-connection web state layered over an ovio
// Connection: either an HTTP message is being parsed, or a websocket
// frame is, selected by mode.
type Socket struct {
	mu sync.Mutex

	reactor *ovio.Reactor
	connID  uint64

	mode  Mode
	input []byte

	host string
	uri  string

	assembler   *Assembler
	closeCode   uint16
	closePhrase string

	userdata any
	logger   *slog.Logger
}

func newSocket(r *ovio.Reactor, connID uint64, logger *slog.Logger) *Socket {
	return &Socket{reactor: r, connID: connID, logger: logger}
}

// ConnID returns the underlying reactor connection ID.
func (s *Socket) ConnID() uint64 { return s.connID }

// Host and URI return the route the socket matched on upgrade (or the
// most recently dispatched HTTP request).
func (s *Socket) Host() string { s.mu.Lock(); defer s.mu.Unlock(); return s.host }
func (s *Socket) URI() string  { s.mu.Lock(); defer s.mu.Unlock(); return s.uri }

// SetUserdata/Userdata store caller-defined state on the socket.
func (s *Socket) SetUserdata(v any) { s.mu.Lock(); s.userdata = v; s.mu.Unlock() }
func (s *Socket) Userdata() any     { s.mu.Lock(); defer s.mu.Unlock(); return s.userdata }

// Close closes the underlying connection.
func (s *Socket) Close() { s.reactor.CloseConn(s.connID) }

// sendFrame writes one websocket frame through Reactor.Send, which waits
// while the connection's one-chunk send queue is full.
func (s *Socket) sendFrame(op Opcode, fin bool, payload []byte) bool {
	return s.reactor.Send(s.connID, EncodeFrame(op, fin, payload))
}

// SendText sends an unfragmented TEXT frame.
func (s *Socket) SendText(payload []byte) bool { return s.sendFrame(OpText, true, payload) }

// SendBinary sends an unfragmented BINARY frame.
func (s *Socket) SendBinary(payload []byte) bool { return s.sendFrame(OpBinary, true, payload) }

// jsonChunkSize is the JSON/event adapter's chunk size.
const jsonChunkSize = 500

// SendJSON serialises payload into one or more TEXT frames of at most
// jsonChunkSize bytes each: a single unfragmented frame when it fits,
// otherwise a starting TEXT(FIN=0) frame, zero or more CONT frames, and
// a final CONT(FIN=1) frame.
func (s *Socket) SendJSON(payload []byte) bool {
	if len(payload) <= jsonChunkSize {
		return s.sendFrame(OpText, true, payload)
	}

	ok := s.sendFrame(OpText, false, payload[:jsonChunkSize])
	payload = payload[jsonChunkSize:]

	for len(payload) > jsonChunkSize {
		ok = s.sendFrame(OpContinuation, false, payload[:jsonChunkSize]) && ok
		payload = payload[jsonChunkSize:]
	}

	return s.sendFrame(OpContinuation, true, payload) && ok
}

// onData is the ovio.IOFunc installed for web connections: it drives the
// HTTP or websocket incremental parser depending on mode.
func (s *Socket) onData(router *Router, data []byte) {
	s.mu.Lock()
	s.input = append(s.input, data...)
	mode := s.mode
	s.mu.Unlock()

	if mode == ModeHTTP {
		s.pumpHTTP(router)
	} else {
		s.pumpWebsocket(router)
	}
}

func (s *Socket) pumpHTTP(router *Router) {
	for {
		s.mu.Lock()
		buf := s.input
		s.mu.Unlock()

		req, consumed, result := ParseRequest(buf, router.limits)
		switch result {
		case ParseProgress:
			return
		case ParseError:
			s.logger.Debug("http parse error, closing", "conn", s.connID)
			s.Close()
			return
		}

		s.mu.Lock()
		s.input = s.input[consumed:]
		s.mu.Unlock()

		s.handleRequest(router, req)
	}
}

func (s *Socket) handleRequest(router *Router, req *Request) {
	s.mu.Lock()
	s.host = req.Host
	s.uri = req.URI
	s.mu.Unlock()

	if req.IsWebsocketUpgrade() {
		route, ok := router.matchWS(req.Host, req.URI)
		if !ok {
			s.reactor.Send(s.connID, []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"))
			return
		}

		s.reactor.Send(s.connID, UpgradeResponse(req.Header.Get("Sec-WebSocket-Key")))

		s.mu.Lock()
		s.mode = ModeWebsocket
		s.assembler = NewAssembler(route.MaxFragments)
		s.mu.Unlock()

		if route.OnOpen != nil {
			route.OnOpen(s)
		}
		return
	}

	handler, ok := router.matchHTTP(req.Host, req.URI)
	if !ok {
		handler = router.notFound
	}
	handler(s, req)
}

func (s *Socket) pumpWebsocket(router *Router) {
	for {
		s.mu.Lock()
		buf := s.input
		s.mu.Unlock()

		frame, consumed, result := ParseFrame(buf, router.limits)
		switch result {
		case ParseProgress:
			return
		case ParseError:
			s.sendFrame(OpClose, true, []byte{0x03, 0xEA}) // 1002
			s.Close()
			return
		}

		s.mu.Lock()
		s.input = s.input[consumed:]
		s.mu.Unlock()

		if !s.handleFrame(router, frame) {
			return
		}
	}
}

// handleFrame processes one parsed frame; returns false if the
// connection was closed as a result (caller must stop pumping).
func (s *Socket) handleFrame(router *Router, frame *Frame) bool {
	switch frame.Opcode {
	case OpPing:
		s.sendFrame(OpPong, true, frame.Payload)
		return true

	case OpPong:
		return true

	case OpClose:
		code, phrase := uint16(1000), ""
		if len(frame.Payload) >= 2 {
			code = uint16(frame.Payload[0])<<8 | uint16(frame.Payload[1])
			phrase = string(frame.Payload[2:])
		}
		s.mu.Lock()
		s.closeCode, s.closePhrase = code, phrase
		s.mu.Unlock()
		s.sendFrame(OpClose, true, frame.Payload)
		s.Close()
		return false

	default: // OpText, OpBinary, OpContinuation
		s.mu.Lock()
		asm := s.assembler
		host, uri := s.host, s.uri
		s.mu.Unlock()

		msg, done, err := asm.Feed(frame)
		if err != nil {
			s.sendFrame(OpClose, true, []byte{0x03, 0xEA})
			s.Close()
			return false
		}
		if !done {
			return true
		}

		route, ok := router.matchWS(host, uri)
		if !ok {
			return true
		}

		switch msg.Opcode {
		case OpText:
			if route.Events != nil {
				route.Events.Dispatch(context.Background(), s, msg.Payload)
			} else if route.OnText != nil {
				route.OnText(s, msg.Payload)
			}
		case OpBinary:
			if route.OnBinary != nil {
				route.OnBinary(s, msg.Payload)
			}
		}
		return true
	}
}

// CloseInfo returns the code/phrase recorded from the last CLOSE frame
// received, if any.
func (s *Socket) CloseInfo() (code uint16, phrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode, s.closePhrase
}
