package signaling

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalmesh/signal-relay/internal/wire"
)

const wsWriteWait = 1 * time.Second

var (
	errSendQueueFull = errors.New("signaling: send queue full")
	errConnClosed    = errors.New("signaling: connection closed")
)

// outFrame is one queued outbound unit: either a liveness ping or a
// JSON signaling message.
type outFrame struct {
	ping bool
	msg  wire.ServerMessage
}

// peerConn adapts a WebSocket connection to the relay engine's
// transport contract. Send and Probe never block: frames go through a
// bounded queue drained by writeLoop, and are refused once the queue is
// full or the connection is closed.
type peerConn struct {
	ws  *websocket.Conn
	out chan outFrame

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeerConn(ws *websocket.Conn, queueDepth int) *peerConn {
	return &peerConn{
		ws:     ws,
		out:    make(chan outFrame, queueDepth),
		closed: make(chan struct{}),
	}
}

func (pc *peerConn) Send(msg wire.ServerMessage) error {
	return pc.enqueue(outFrame{msg: msg})
}

func (pc *peerConn) Probe() error {
	return pc.enqueue(outFrame{ping: true})
}

func (pc *peerConn) enqueue(frame outFrame) error {
	select {
	case <-pc.closed:
		return errConnClosed
	default:
	}
	select {
	case pc.out <- frame:
		return nil
	default:
		return errSendQueueFull
	}
}

func (pc *peerConn) Close() error {
	var err error
	pc.closeOnce.Do(func() {
		close(pc.closed)
		err = pc.ws.Close()
	})
	return err
}

// writeLoop drains the outbound queue until the connection closes. A
// failed write tears the connection down; the read side then unblocks
// and deregisters the peer.
func (pc *peerConn) writeLoop() {
	for {
		select {
		case <-pc.closed:
			return
		case frame := <-pc.out:
			deadline := time.Now().Add(wsWriteWait)
			var err error
			if frame.ping {
				err = pc.ws.WriteControl(websocket.PingMessage, nil, deadline)
			} else {
				_ = pc.ws.SetWriteDeadline(deadline)
				err = pc.ws.WriteJSON(frame.msg)
			}
			if err != nil {
				_ = pc.Close()
				return
			}
		}
	}
}
