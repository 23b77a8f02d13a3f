package signaling

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalmesh/signal-relay/internal/config"
	"github.com/signalmesh/signal-relay/internal/origin"
	"github.com/signalmesh/signal-relay/internal/ratelimit"
	"github.com/signalmesh/signal-relay/internal/relay"
)

// WebSocketServer accepts browser signaling connections and bridges
// them to the relay engine.
//
// It enforces the origin allowlist plus per-connection limits (message
// size, message rate) so one client cannot starve the relay.
type WebSocketServer struct {
	cfg      config.Config
	log      *slog.Logger
	engine   *relay.Engine
	allow    *origin.Allowlist
	upgrader websocket.Upgrader
}

func NewWebSocketServer(cfg config.Config, logger *slog.Logger, engine *relay.Engine) *WebSocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	allow := origin.NewAllowlist(cfg.AllowedOrigins)
	return &WebSocketServer{
		cfg:    cfg,
		log:    logger,
		engine: engine,
		allow:  allow,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allow.Allows(r.Header.Get("Origin"))
			},
		},
	}
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	pc := newPeerConn(ws, s.cfg.SendQueueMessages)
	defer pc.Close()

	conn, err := s.engine.Register(pc)
	if err != nil {
		if errors.Is(err, relay.ErrTooManyConnections) {
			writeClose(ws, websocket.CloseTryAgainLater, "server full")
		} else {
			writeClose(ws, websocket.CloseInternalServerErr, "registration failed")
		}
		return
	}
	defer s.engine.Disconnect(conn)

	ws.SetReadLimit(s.cfg.MaxSignalingMessageBytes)
	ws.SetPongHandler(func(string) error {
		s.engine.HandleProbeAck(conn)
		return nil
	})

	go pc.writeLoop()

	rate := int64(s.cfg.MaxSignalingMessagesPerSecond)
	limiter := ratelimit.NewTokenBucket(ratelimit.RealClock{}, rate, rate)

	for {
		msgType, msgReader, err := ws.NextReader()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(ws, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		if !limiter.Allow() {
			writeClose(ws, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		msg, err := io.ReadAll(msgReader)
		if err != nil {
			// Includes frames over the read limit; gorilla has already
			// sent the 1009 close for those.
			return
		}
		s.engine.HandleMessage(conn, msg)
	}
}

func writeClose(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}
