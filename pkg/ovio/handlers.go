package ovio

// AcceptFunc is consulted after a connection is accepted, before it is
// installed in the table; returning false rejects (closes) it.
type AcceptFunc func(c *Connection) bool

// IOFunc delivers bytes read from a connection. This package always
// consumes the delivered bytes in full (Go's net.Conn has no portable
// peek-without-consume primitive), so callers that need partial
// consumption buffer themselves (ovweb does, via its per-connection
// input accumulator).
type IOFunc func(c *Connection, data []byte)

// CloseFunc is invoked exactly once when a connection is torn down.
type CloseFunc func(c *Connection, err error)

// ConnectedFunc is invoked once an outbound client's connect (and TLS
// handshake, if any) completes successfully.
type ConnectedFunc func(c *Connection)

// Handlers bundles the callback set a Listener installs on every
// connection it accepts.
type Handlers struct {
	Accept    AcceptFunc
	IO        IOFunc
	Close     CloseFunc
	Connected ConnectedFunc
}
