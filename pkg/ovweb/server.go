package ovweb

import (
	"crypto/tls"
	"log/slog"
	"sync"

	"github.com/ov-collective/ovgo/pkg/ovio"
)

// Server wires an ovio.Reactor to a Router: every accepted connection
// gets a Socket that feeds the HTTP/websocket incremental parsers.
type Server struct {
	reactor *ovio.Reactor
	router  *Router
	logger  *slog.Logger

	mu      sync.Mutex
	sockets map[uint64]*Socket
}

// NewServer creates a Server bound to reactor and router.
func NewServer(reactor *ovio.Reactor, router *Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{reactor: reactor, router: router, logger: logger, sockets: make(map[uint64]*Socket)}
}

// Listen starts a plain or TLS (tlsConfig != nil) listener whose accepted
// connections are driven by this Server's Router.
func (srv *Server) Listen(network, address string, tlsConfig *tls.Config) (*ovio.Connection, error) {
	return srv.reactor.Listen(network, address, tlsConfig, ovio.Handlers{
		IO: func(c *ovio.Connection, data []byte) {
			srv.socketFor(c).onData(srv.router, data)
		},
		Close: func(c *ovio.Connection, err error) {
			srv.mu.Lock()
			delete(srv.sockets, c.GetID())
			srv.mu.Unlock()
		},
	})
}

// socketFor lazily associates a Socket with c on first IO callback, since
// ovio only assigns a connection's ID after Accept returns.
func (srv *Server) socketFor(c *ovio.Connection) *Socket {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if s, ok := srv.sockets[c.GetID()]; ok && s.connID == c.GetID() {
		return s
	}

	s := newSocket(srv.reactor, c.GetID(), srv.logger)
	srv.sockets[c.GetID()] = s
	return s
}
