package ovrecorder

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/ov-collective/ovgo/pkg/ovrtp"
)

// McastReceiver reads RTP packets off a multicast UDP socket and
// submits them to a worker pool. It runs on its own goroutine,
// distinct from the TCP-oriented I/O reactor: RTP transport here is
// unreliable/connectionless, so there is no connection table entry or
// TLS handshake to drive.
//
// When table and bindID are set, the receiver treats the stream
// table's entry for bindID as pending: signalling only ever knows the
// multicast group address, not the wire SSRC, so the first packet
// observed on the group binds it.
type McastReceiver struct {
	conn   *net.UDPConn
	pool   *WorkerPool
	logger *slog.Logger
	done   chan struct{}

	table  *Table
	bindID string
	bound  bool
}

// ListenMulticast joins the multicast group at address (host:port) and
// returns a receiver ready to Run.
func ListenMulticast(address string, pool *WorkerPool, logger *slog.Logger) (*McastReceiver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("resolve multicast address %s: %w", address, err)
	}

	conn, err := net.ListenMulticastUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("join multicast group %s: %w", address, err)
	}

	return &McastReceiver{conn: conn, pool: pool, logger: logger, done: make(chan struct{})}, nil
}

// ListenMulticastForRecording joins address the same way as
// ListenMulticast, and additionally binds the first packet's wire SSRC
// to table's pending entry for id via Table.BindSSRC. Each
// start_record request gets its own receiver, joined to its own group:
// this is what lets the per-frame hot path key off a real SSRC once
// traffic for that specific request's group starts flowing.
func ListenMulticastForRecording(address string, table *Table, id string, pool *WorkerPool, logger *slog.Logger) (*McastReceiver, error) {
	r, err := ListenMulticast(address, pool, logger)
	if err != nil {
		return nil, err
	}
	r.table = table
	r.bindID = id
	return r, nil
}

// Run reads packets until Close is called. It never returns an error
// for a closed socket; read errors otherwise are logged and the loop
// continues (a single malformed/truncated datagram must not stop the
// stream).
func (r *McastReceiver) Run() {
	buf := make([]byte, 2048)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			r.logger.Warn("multicast read error", "err", err)
			continue
		}

		header, payload, err := ovrtp.ParsePacket(buf[:n])
		if err != nil {
			r.logger.Warn("dropping malformed rtp packet", "err", err)
			continue
		}

		if r.table != nil && r.bindID != "" && !r.bound {
			if err := r.table.BindSSRC(r.bindID, header.SSRC); err != nil {
				r.logger.Warn("bind multicast ssrc", "id", r.bindID, "ssrc", header.SSRC, "err", err)
			} else {
				r.bound = true
			}
		}

		r.pool.Submit(Message{SSRC: header.SSRC, Seq: header.SequenceNumber, Payload: payload})
	}
}

// Close stops Run and releases the socket.
func (r *McastReceiver) Close() error {
	close(r.done)
	return r.conn.Close()
}
