package ovweb

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ov-collective/ovgo/pkg/ovio"
)

func TestWebsocketUpgradeAndJSONEventRoundTrip(t *testing.T) {
	reactor := ovio.New(ovio.Config{})
	defer reactor.Close()

	router := NewRouter(DefaultLimits())
	events := NewEventEngine(nil)

	received := make(chan string, 1)
	events.Push("ping", nil, func(ctx context.Context, userdata any, s *Socket, parameter gjson.Result) error {
		received <- parameter.Get("text").String()
		SendEvent(s, "pong", "", map[string]string{"text": "ack"})
		return nil
	})

	require.NoError(t, router.HandleWebsocket("", "/ws", &WSRoute{Events: events}))

	srv := NewServer(reactor, router, nil)
	ln, err := srv.Listen("tcp", "127.0.0.1:0", nil)
	require.NoError(t, err)

	url := fmt.Sprintf("ws://%s/ws", listenerAddr(ln))
	conn, _, err := gorillaws.DefaultDialer.Dial(url, http.Header{})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(gorillaws.TextMessage, []byte(`{"event":"ping","parameter":{"text":"hi"}}`)))

	select {
	case text := <-received:
		require.Equal(t, "hi", text)
	case <-time.After(2 * time.Second):
		t.Fatal("event was never dispatched")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "pong", gjson.GetBytes(payload, "event").String())
	require.Equal(t, "ack", gjson.GetBytes(payload, "parameter.text").String())
}

func TestWebsocketFragmentedClientMessage(t *testing.T) {
	reactor := ovio.New(ovio.Config{})
	defer reactor.Close()

	router := NewRouter(DefaultLimits())
	gotText := make(chan string, 1)
	require.NoError(t, router.HandleWebsocket("", "/echo", &WSRoute{
		OnText: func(s *Socket, payload []byte) { gotText <- string(payload) },
	}))

	srv := NewServer(reactor, router, nil)
	ln, err := srv.Listen("tcp", "127.0.0.1:0", nil)
	require.NoError(t, err)

	conn, _, err := gorillaws.DefaultDialer.Dial(fmt.Sprintf("ws://%s/echo", listenerAddr(ln)), nil)
	require.NoError(t, err)
	defer conn.Close()

	// Send TEXT(FIN=0,"he"), CONT(FIN=0,"ll"), CONT(FIN=1,"o") as raw
	// unmasked frames; the server's frame parser accepts unmasked frames.
	raw := conn.UnderlyingConn()
	_, err = raw.Write(EncodeFrame(OpText, false, []byte("he")))
	require.NoError(t, err)
	_, err = raw.Write(append(EncodeFrame(OpContinuation, false, []byte("ll")), EncodeFrame(OpContinuation, true, []byte("o"))...))
	require.NoError(t, err)

	select {
	case text := <-gotText:
		require.Equal(t, "hello", text)
	case <-time.After(2 * time.Second):
		t.Fatal("fragmented message never reassembled")
	}
}

func TestHTTPNotFoundForUnknownRoute(t *testing.T) {
	reactor := ovio.New(ovio.Config{})
	defer reactor.Close()

	router := NewRouter(DefaultLimits())
	srv := NewServer(reactor, router, nil)
	ln, err := srv.Listen("tcp", "127.0.0.1:0", nil)
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/nope", listenerAddr(ln)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 404, resp.StatusCode)
}

// listenerAddr extracts the bound address string from an ovio.Connection
// that wraps a Listener entry (test helper; the listener field is
// unexported, so this goes through the exported ListenerAddr accessor).
func listenerAddr(c *ovio.Connection) string {
	return c.ListenerAddr().String()
}
