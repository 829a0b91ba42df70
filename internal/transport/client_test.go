package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newConnPair spins up a real WebSocket handshake over an httptest server so
// Client can be exercised against a genuine *websocket.Conn rather than a
// hand-rolled fake.
func newConnPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		connCh <- c
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientConn.Close() })

	select {
	case serverConn := <-connCh:
		return serverConn, clientConn
	case <-time.After(time.Second):
		t.Fatal("server never completed the handshake")
		return nil, nil
	}
}

func TestClient_SendDeliversToPeer(t *testing.T) {
	serverConn, clientConn := newConnPair(t)
	c := NewClient(serverConn, "conn-1")
	go c.WritePump()
	defer c.Close()

	c.Send([]byte(`{"type":"ping"}`))

	_, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"type":"ping"}`, string(data))
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	serverConn, _ := newConnPair(t)
	c := NewClient(serverConn, "conn-2")
	go c.WritePump()

	c.Close()
	assert.NotPanics(t, func() { c.Close() })

	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel should be closed after Close")
	}
}

func TestClient_SendAfterCloseIsNoop(t *testing.T) {
	serverConn, _ := newConnPair(t)
	c := NewClient(serverConn, "conn-3")
	go c.WritePump()

	c.Close()
	assert.NotPanics(t, func() { c.Send([]byte("after-close")) })
}

func TestClient_OverflowClosesConnection(t *testing.T) {
	serverConn, _ := newConnPair(t)
	c := NewClient(serverConn, "conn-4")
	// Deliberately no WritePump: the outbound queue fills and overflows.

	for i := 0; i < sendBufferSize+1; i++ {
		c.Send([]byte("x"))
	}

	require.Eventually(t, func() bool {
		select {
		case <-c.Done():
			return true
		default:
			return false
		}
	}, time.Second, time.Millisecond, "overflowing the send queue should close the connection")
}

func TestClient_HeartbeatAliveFlag(t *testing.T) {
	serverConn, clientConn := newConnPair(t)
	c := NewClient(serverConn, "conn-5")
	go c.WritePump()
	go c.ReadPump(func(*Client, []byte) {})
	defer c.Close()
	defer clientConn.Close()

	assert.True(t, c.IsAlive())
	c.MarkNotAlive()
	assert.False(t, c.IsAlive())

	// gorilla's default ping handler only fires while something is reading
	// the peer connection, so pump it in the background to let it reply
	// with a pong automatically.
	go func() {
		for {
			if _, _, err := clientConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, c.Ping())
	require.Eventually(t, c.IsAlive, time.Second, 10*time.Millisecond)
}

func TestClient_FrameRateLimitWarnsThenDrops(t *testing.T) {
	serverConn, clientConn := newConnPair(t)
	c := NewClient(serverConn, "conn-6")
	go c.WritePump()

	var dispatched int
	done := make(chan struct{})
	go func() {
		c.ReadPump(func(*Client, []byte) { dispatched++ })
		close(done)
	}()

	for i := 0; i < 25; i++ {
		require.NoError(t, clientConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"noop"}`)))
	}

	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := clientConn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "Zu viele Nachrichten")

	clientConn.Close()
	<-done
	assert.Equal(t, 20, dispatched, "frames past the soft threshold must be dropped, not dispatched")
}
