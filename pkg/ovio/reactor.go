package ovio

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// ErrPending is returned by Connect when an outbound connect attempt
// could not complete inline and has instead been enqueued on the
// reconnect worker.
var ErrPending = errors.New("ovio: connect pending, enqueued for retry")

// Config tunes reactor-wide behaviour.
type Config struct {
	// Capacity bounds the connection table, analogous to sizing for a
	// process's max supported runtime file descriptors.
	Capacity int
	// AcceptToIOTimeout closes an InboundAccepted connection that has
	// sent no data since being accepted.
	AcceptToIOTimeout time.Duration
	// IOTimeout closes an InboundAccepted connection idle this long.
	IOTimeout time.Duration
	// ReconnectInterval is how often the reconnect worker drains its
	// queue.
	ReconnectInterval time.Duration
	// SendChunkSize is the kernel send-buffer hint: outbound sends
	// larger than this are split into chunks of this size.
	SendChunkSize int
	// HandshakeTimeout bounds TLS handshake duration for both accepted
	// and dialed connections.
	HandshakeTimeout time.Duration
	// ConnectTimeout bounds the TCP/TLS dial for outbound connections.
	ConnectTimeout time.Duration
	// ReconnectQueueCapacity bounds the reconnect worker's backlog.
	ReconnectQueueCapacity int

	Logger *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = 4096
	}
	if c.AcceptToIOTimeout <= 0 {
		c.AcceptToIOTimeout = 3 * time.Second
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 3 * time.Second
	}
	if c.SendChunkSize <= 0 {
		c.SendChunkSize = 200 * 1024
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReconnectQueueCapacity <= 0 {
		c.ReconnectQueueCapacity = 64
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Reactor is the I/O manager: it owns a Table, accepts and
// originates connections, and drives their read/write/close lifecycle.
type Reactor struct {
	cfg   Config
	table *Table
	log   *slog.Logger

	reconnect *reconnectWorker

	mu       sync.Mutex
	stopping bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a Reactor and starts its background idle-timeout sweep and
// reconnect worker.
func New(cfg Config) *Reactor {
	cfg.setDefaults()

	r := &Reactor{
		cfg:    cfg,
		table:  NewTable(cfg.Capacity),
		log:    cfg.Logger,
		stopCh: make(chan struct{}),
	}
	r.reconnect = newReconnectWorker(r, cfg.ReconnectInterval, cfg.ReconnectQueueCapacity)

	r.wg.Add(2)
	go r.idleSweepLoop()
	go r.reconnect.run()

	return r
}

// Close stops all background loops and closes every connection and
// listener (close cascade: listeners close their accepted children
// first, then themselves).
func (r *Reactor) Close() {
	r.mu.Lock()
	if r.stopping {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	close(r.stopCh)
	r.mu.Unlock()

	for _, c := range r.table.Snapshot() {
		if c.Kind == KindListener {
			r.closeListener(c, nil)
		}
	}
	for _, c := range r.table.Snapshot() {
		r.closeConn(c, nil)
	}

	r.wg.Wait()
}

// Table exposes the underlying connection table (for metrics/tests).
func (r *Reactor) Table() *Table { return r.table }

// Listen starts accepting connections on network/address. If tlsConfig is
// non-nil, accepted connections are TLS-wrapped and the handshake is
// driven before the first IO callback fires. h.Accept is consulted for
// every newly accepted connection before it is installed in the table.
func (r *Reactor) Listen(network, address string, tlsConfig *tls.Config, h Handlers) (*Connection, error) {
	var ln net.Listener
	var err error

	switch network {
	case "unix":
		_ = os.Remove(address)
		ln, err = net.Listen(network, address)
	default:
		ln, err = net.Listen(network, address)
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, address, err)
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	lc := &Connection{
		Kind:     KindListener,
		listener: ln,
		handlers: h,
	}
	lc.stats.CreatedAt = time.Now()

	if _, err := r.table.Add(lc); err != nil {
		ln.Close()
		return nil, err
	}

	r.wg.Add(1)
	go r.acceptLoop(lc)

	return lc, nil
}

func (r *Reactor) acceptLoop(lc *Connection) {
	defer r.wg.Done()

	for {
		conn, err := lc.listener.Accept()
		if err != nil {
			select {
			case <-r.stopCh:
				return
			default:
			}
			r.log.Warn("accept error", "listener", lc.ID, "error", err)
			return
		}
		r.handleAccepted(lc, conn)
	}
}

func (r *Reactor) handleAccepted(lc *Connection, conn net.Conn) {
	c := &Connection{
		Kind:     KindInboundAccepted,
		conn:     conn,
		ioCB:     lc.handlers.IO,
		closeCB:  lc.handlers.Close,
		sendCh:   nil,
		listenerID: lc.ID,
	}
	c.stats.CreatedAt = time.Now()

	if lc.handlers.Accept != nil && !lc.handlers.Accept(c) {
		conn.Close()
		return
	}

	if _, err := r.table.Add(c); err != nil {
		r.log.Warn("connection table full, dropping accept", "error", err)
		conn.Close()
		return
	}

	if tlsConn, ok := conn.(*tls.Conn); ok {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.HandshakeTimeout)
		err := tlsConn.HandshakeContext(ctx)
		cancel()
		if err != nil {
			r.log.Debug("tls handshake failed", "conn", c.ID, "error", err)
			r.closeConn(c, err)
			return
		}
		c.mu.Lock()
		c.handshaked = true
		c.domainName = tlsConn.ConnectionState().ServerName
		c.mu.Unlock()
	}

	r.startPumps(c)
}

// Connect originates an outbound connection. When
// tlsClient is non-nil the connection is TLS-wrapped; a verify location
// (CAFile or CAPath) is mandatory in that case. If the dial fails and
// autoReconnect is true, the target is enqueued on the reconnect worker
// and ErrPending is returned instead of the dial error.
func (r *Reactor) Connect(target Target, tlsClient *TLSClientConfig, h Handlers, autoReconnect bool) (*Connection, error) {
	conn, err := r.dial(target, tlsClient)
	if err != nil {
		if autoReconnect {
			r.reconnect.enqueue(reconnectItem{target: target, tlsClient: tlsClient, handlers: h, autoReconnect: true})
			return nil, ErrPending
		}
		return nil, err
	}

	c := &Connection{
		Kind:          KindOutboundClient,
		conn:          conn,
		ioCB:          h.IO,
		closeCB:       h.Close,
		connectedCB:   h.Connected,
		autoReconnect: autoReconnect,
		target:        target,
		tlsClient:     tlsClient,
	}
	c.stats.CreatedAt = time.Now()
	c.handshaked = tlsClient != nil

	if _, err := r.table.Add(c); err != nil {
		conn.Close()
		return nil, err
	}

	if h.Connected != nil {
		h.Connected(c)
	}

	r.startPumps(c)

	return c, nil
}

func (r *Reactor) dial(target Target, tlsClient *TLSClientConfig) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ConnectTimeout)
	defer cancel()

	var d net.Dialer
	network := target.Network
	if network == "" {
		network = "tcp"
	}

	if tlsClient == nil {
		return d.DialContext(ctx, network, target.Address)
	}

	if tlsClient.CAFile == "" && tlsClient.CAPath == "" {
		return nil, fmt.Errorf("tls client config for %s requires a CA file or path", target.Address)
	}

	pool, err := loadCertPool(tlsClient.CAFile, tlsClient.CAPath)
	if err != nil {
		return nil, fmt.Errorf("load client verify locations: %w", err)
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    pool,
		ServerName: tlsClient.SNIName,
	}

	if tlsClient.CertFile != "" && tlsClient.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tlsClient.CertFile, tlsClient.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	rawConn, err := d.DialContext(ctx, network, target.Address)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(rawConn, cfg)
	hctx, hcancel := context.WithTimeout(ctx, r.cfg.HandshakeTimeout)
	defer hcancel()
	if err := tlsConn.HandshakeContext(hctx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}

	return tlsConn, nil
}

func loadCertPool(file, dir string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	found := false

	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certs in %q", file)
		}
		found = true
	}
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(dir + "/" + e.Name())
			if err == nil && pool.AppendCertsFromPEM(data) {
				found = true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("no usable verify locations in %q / %q", file, dir)
	}
	return pool, nil
}

func (r *Reactor) startPumps(c *Connection) {
	c.sendCh = make(chan []byte, 1)

	r.wg.Add(2)
	go r.readLoop(c)
	go r.writeLoop(c)
}

func (r *Reactor) readLoop(c *Connection) {
	defer r.wg.Done()

	buf := make([]byte, 16*1024)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.stats.RecvBytes += uint64(n)
			c.stats.RecvLastAt = time.Now()
			c.mu.Unlock()

			if c.ioCB != nil {
				data := make([]byte, n)
				copy(data, buf[:n])
				c.ioCB(c, data)
			}
		}
		if err != nil {
			r.closeConn(c, err)
			return
		}
	}
}

func (r *Reactor) writeLoop(c *Connection) {
	defer r.wg.Done()

	for chunk := range c.sendCh {
		n, err := c.conn.Write(chunk)
		if err != nil {
			r.closeConn(c, err)
			// drain remaining queued sends to unblock Send callers
			for range c.sendCh {
			}
			return
		}
		c.mu.Lock()
		c.stats.SendBytes += uint64(n)
		c.stats.SendLastAt = time.Now()
		c.mu.Unlock()
	}
}

// Send enqueues bytes for connection id, splitting into SendChunkSize
// chunks. Returns true iff every chunk was enqueued. The connection's
// send queue holds one chunk, so Send waits until the writer goroutine
// has taken the previous chunk; a slow peer holds the caller up. It
// returns false once the reactor is closing.
func (r *Reactor) Send(id uint64, data []byte) bool {
	c, ok := r.table.Get(id)
	if !ok {
		return false
	}
	return r.send(c, data)
}

func (r *Reactor) send(c *Connection, data []byte) bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}

	chunkSize := r.cfg.SendChunkSize
	for len(data) > 0 {
		n := len(data)
		if n > chunkSize {
			n = chunkSize
		}
		chunk := make([]byte, n)
		copy(chunk, data[:n])
		data = data[n:]

		select {
		case c.sendCh <- chunk:
		case <-r.stopCh:
			return false
		}
	}
	return true
}

// CloseConn closes connection id, invoking its close callback exactly once.
func (r *Reactor) CloseConn(id uint64) {
	if c, ok := r.table.Get(id); ok {
		r.closeConn(c, nil)
	}
}

func (r *Reactor) closeConn(c *Connection, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	autoReconnect := c.autoReconnect
	target := c.target
	tlsClient := c.tlsClient
	cb := c.closeCB
	c.mu.Unlock()

	r.table.Remove(c.ID)
	if c.conn != nil {
		c.conn.Close()
	}
	if c.sendCh != nil {
		close(c.sendCh)
	}

	if cb != nil {
		cb(c, err)
	}

	if c.Kind == KindOutboundClient && autoReconnect {
		r.reconnect.enqueue(reconnectItem{
			target:        target,
			tlsClient:     tlsClient,
			handlers:      Handlers{IO: c.ioCB, Close: c.closeCB, Connected: c.connectedCB},
			autoReconnect: true,
		})
	}
}

func (r *Reactor) closeListener(lc *Connection, err error) {
	for _, c := range r.table.Snapshot() {
		if c.Kind == KindInboundAccepted && c.listenerID == lc.ID {
			r.closeConn(c, err)
		}
	}

	lc.mu.Lock()
	if lc.closed {
		lc.mu.Unlock()
		return
	}
	lc.closed = true
	lc.mu.Unlock()

	r.table.Remove(lc.ID)
	if lc.listener != nil {
		lc.listener.Close()
	}
	if lc.handlers.Close != nil {
		lc.handlers.Close(lc, err)
	}
}

func (r *Reactor) idleSweepLoop() {
	defer r.wg.Done()

	interval := r.cfg.AcceptToIOTimeout
	if r.cfg.ReconnectInterval < interval {
		interval = r.cfg.ReconnectInterval
	}
	if interval <= 0 {
		interval = time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-t.C:
			r.sweepIdle()
		}
	}
}

func (r *Reactor) sweepIdle() {
	now := time.Now()
	for _, c := range r.table.Snapshot() {
		if c.Kind != KindInboundAccepted {
			continue
		}

		c.mu.Lock()
		noIO := c.stats.RecvLastAt.IsZero() && c.stats.SendLastAt.IsZero()
		created := c.stats.CreatedAt
		lastIO := c.stats.RecvLastAt
		if c.stats.SendLastAt.After(lastIO) {
			lastIO = c.stats.SendLastAt
		}
		c.mu.Unlock()

		switch {
		case noIO && r.cfg.AcceptToIOTimeout > 0 && now.Sub(created) > r.cfg.AcceptToIOTimeout:
			r.closeConn(c, fmt.Errorf("accept-to-io timeout"))
		case !noIO && r.cfg.IOTimeout > 0 && now.Sub(lastIO) > r.cfg.IOTimeout:
			r.closeConn(c, fmt.Errorf("io timeout"))
		}
	}
}
