package ovio

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackPressureSplitsIntoChunks(t *testing.T) {
	r := New(Config{SendChunkSize: 200 * 1024})
	defer r.Close()

	var mu sync.Mutex
	var received []byte
	done := make(chan struct{})

	ln, err := r.Listen("tcp", "127.0.0.1:0", nil, Handlers{})
	require.NoError(t, err)

	addr := ln.listener.Addr().String()
	clientConn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer clientConn.Close()

	// wait until the server side is in the table
	var serverID uint64
	require.Eventually(t, func() bool {
		for _, c := range r.table.Snapshot() {
			if c.Kind == KindInboundAccepted {
				serverID = c.ID
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	payload := make([]byte, 1_200_000)
	for i := range payload {
		payload[i] = byte(i)
	}

	// the server sends to the client: collect what the client side reads
	buf := make([]byte, 64*1024)
	go func() {
		for {
			n, err := clientConn.Read(buf)
			if n > 0 {
				mu.Lock()
				received = append(received, buf[:n]...)
				if len(received) >= 1_200_000 {
					close(done)
				}
				mu.Unlock()
			}
			if err != nil {
				return
			}
		}
	}()

	ok := r.Send(serverID, payload)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for payload")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, payload, received)
}

func TestAcceptCallbackCanReject(t *testing.T) {
	r := New(Config{})
	defer r.Close()

	ln, err := r.Listen("tcp", "127.0.0.1:0", nil, Handlers{
		Accept: func(c *Connection) bool { return false },
	})
	require.NoError(t, err)

	conn, err := net.Dial("tcp", ln.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, err = conn.Read(buf)
	require.Error(t, err) // connection should be closed by the server

	require.Never(t, func() bool {
		for _, c := range r.table.Snapshot() {
			if c.Kind == KindInboundAccepted {
				return true
			}
		}
		return false
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestIdleAcceptToIOTimeoutCloses(t *testing.T) {
	r := New(Config{AcceptToIOTimeout: 50 * time.Millisecond, ReconnectInterval: 50 * time.Millisecond})
	defer r.Close()

	closed := make(chan struct{})
	ln, err := r.Listen("tcp", "127.0.0.1:0", nil, Handlers{
		// the listener's own close on r.Close also reaches this handler
		Close: func(c *Connection, err error) {
			if c.Kind == KindInboundAccepted {
				close(closed)
			}
		},
	})
	require.NoError(t, err)

	conn, err := net.Dial("tcp", ln.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not idle-timed-out")
	}
}

func TestSendToUnknownConnectionReturnsFalse(t *testing.T) {
	r := New(Config{})
	defer r.Close()

	ok := r.Send(9999, []byte("hi"))
	require.False(t, ok)
}
