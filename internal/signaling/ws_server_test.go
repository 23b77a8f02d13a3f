package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalmesh/signal-relay/internal/config"
	"github.com/signalmesh/signal-relay/internal/relay"
	"github.com/signalmesh/signal-relay/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		SendQueueMessages:             16,
		MaxSignalingMessageBytes:      64 * 1024,
		MaxSignalingMessagesPerSecond: 50,
	}
}

func newTestServer(t *testing.T, cfg config.Config, relayCfg relay.Config) (*httptest.Server, *relay.Engine) {
	t.Helper()
	engine := relay.NewEngine(relayCfg, testLogger(), nil)
	srv := httptest.NewServer(NewWebSocketServer(cfg, testLogger(), engine))
	t.Cleanup(srv.Close)
	return srv, engine
}

func dial(t *testing.T, srv *httptest.Server, originHeader string) *websocket.Conn {
	t.Helper()
	ws, err := dialErr(srv, originHeader)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func dialErr(srv *httptest.Server, originHeader string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	var header http.Header
	if originHeader != "" {
		header = http.Header{"Origin": []string{originHeader}}
	}
	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return ws, err
}

// readUntil reads server messages until one of the wanted type arrives.
// Other message types received on the way are discarded.
func readUntil(t *testing.T, ws *websocket.Conn, typ wire.MessageType) wire.ServerMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	_ = ws.SetReadDeadline(deadline)
	for time.Now().Before(deadline) {
		var msg wire.ServerMessage
		if err := ws.ReadJSON(&msg); err != nil {
			t.Fatalf("read while waiting for %q: %v", typ, err)
		}
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("timed out waiting for %q", typ)
	return wire.ServerMessage{}
}

func join(t *testing.T, ws *websocket.Conn, room string) wire.ServerMessage {
	t.Helper()
	if err := ws.WriteJSON(wire.ClientMessage{Type: wire.MessageTypeJoin, Room: room}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	return readUntil(t, ws, wire.MessageTypeJoined)
}

func TestJoinHandshakeAndPeerNotification(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), relay.Config{})

	a := dial(t, srv, "")
	ackA := join(t, a, "room-1")
	if ackA.ID == "" {
		t.Fatalf("joined ack missing id")
	}
	if len(ackA.Peers) != 0 {
		t.Fatalf("first joiner peers = %v", ackA.Peers)
	}

	b := dial(t, srv, "")
	ackB := join(t, b, "room-1")
	if len(ackB.Peers) != 1 || ackB.Peers[0] != ackA.ID {
		t.Fatalf("second joiner peers = %v, want [%s]", ackB.Peers, ackA.ID)
	}

	joined := readUntil(t, a, wire.MessageTypePeerJoined)
	if joined.PeerID != ackB.ID {
		t.Fatalf("peer-joined id = %q, want %q", joined.PeerID, ackB.ID)
	}
}

func TestDirectedSignalEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), relay.Config{})

	a := dial(t, srv, "")
	ackA := join(t, a, "room-1")
	b := dial(t, srv, "")
	ackB := join(t, b, "room-1")
	readUntil(t, a, wire.MessageTypePeerJoined)

	payload := []byte(`{"type":"offer","sdp":"v=0"}`)
	err := a.WriteJSON(wire.ClientMessage{Type: wire.MessageTypeSignal, To: ackB.ID, Data: payload})
	if err != nil {
		t.Fatalf("write signal: %v", err)
	}

	sig := readUntil(t, b, wire.MessageTypeSignal)
	if sig.From != ackA.ID || sig.To != ackB.ID {
		t.Fatalf("signal from=%q to=%q", sig.From, sig.To)
	}
	if string(sig.Data) != string(payload) {
		t.Fatalf("signal data = %s", sig.Data)
	}
}

func TestOriginAllowlist(t *testing.T) {
	cfg := testConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	srv, _ := newTestServer(t, cfg, relay.Config{})

	if _, err := dialErr(srv, "https://evil.example.com"); err == nil {
		t.Fatalf("handshake from disallowed origin succeeded")
	}

	ws, err := dialErr(srv, "https://app.example.com")
	if err != nil {
		t.Fatalf("handshake from allowed origin failed: %v", err)
	}
	ws.Close()

	// Non-browser clients send no Origin header and are always allowed.
	ws, err = dialErr(srv, "")
	if err != nil {
		t.Fatalf("handshake without origin failed: %v", err)
	}
	ws.Close()
}

func TestServerFullClosesWithTryAgainLater(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), relay.Config{MaxConnections: 1})

	a := dial(t, srv, "")
	join(t, a, "room-1")

	b := dial(t, srv, "")
	_ = b.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := b.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("err = %v, want close %d", err, websocket.CloseTryAgainLater)
	}
}

func TestBinaryMessageIsRejected(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), relay.Config{})

	ws := dial(t, srv, "")
	if err := ws.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseUnsupportedData) {
		t.Fatalf("err = %v, want close %d", err, websocket.CloseUnsupportedData)
	}
}

func TestMessageRateLimitClosesConnection(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSignalingMessagesPerSecond = 2
	srv, _ := newTestServer(t, cfg, relay.Config{})

	ws := dial(t, srv, "")
	for i := 0; i < 3; i++ {
		if err := ws.WriteJSON(wire.ClientMessage{Type: wire.MessageTypeLeave}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}

	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("err = %v, want close %d", err, websocket.ClosePolicyViolation)
		}
		return
	}
}

func TestMalformedJSONGetsErrorReply(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), relay.Config{})

	ws := dial(t, srv, "")
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readUntil(t, ws, wire.MessageTypeError)
	if reply.Message == "" {
		t.Fatalf("error reply missing message text")
	}

	// The connection survives; a well-formed message still works.
	join(t, ws, "room-1")
}

func TestDisconnectNotifiesRoomMates(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), relay.Config{})

	a := dial(t, srv, "")
	ackA := join(t, a, "room-1")
	b := dial(t, srv, "")
	join(t, b, "room-1")
	readUntil(t, a, wire.MessageTypePeerJoined)

	a.Close()

	left := readUntil(t, b, wire.MessageTypePeerLeft)
	if left.PeerID != ackA.ID {
		t.Fatalf("peer-left id = %q, want %q", left.PeerID, ackA.ID)
	}
}

func TestSilentClientIsEvicted(t *testing.T) {
	srv, engine := newTestServer(t, testConfig(), relay.Config{})

	// a joins and then never reads again, so it cannot answer pings.
	a := dial(t, srv, "")
	ackA := join(t, a, "room-1")

	// b keeps reading; the client's default ping handler answers pongs.
	b := dial(t, srv, "")
	join(t, b, "room-1")
	readUntil(t, a, wire.MessageTypePeerJoined)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor := relay.NewMonitor(engine, testLogger(), 50*time.Millisecond)
	go monitor.Run(ctx)

	left := readUntil(t, b, wire.MessageTypePeerLeft)
	if left.PeerID != ackA.ID {
		t.Fatalf("peer-left id = %q, want %q", left.PeerID, ackA.ID)
	}
}
