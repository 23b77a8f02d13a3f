package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/signalmesh/signal-relay/internal/metrics"
	"github.com/signalmesh/signal-relay/internal/wire"
)

type Config struct {
	// MaxConnections caps concurrently registered connections. <= 0
	// means unlimited.
	MaxConnections int
}

// Engine tracks registered connections and interprets their signaling
// messages against the room table.
//
// The registry mutex serializes registration and teardown; room
// mutations are atomic inside the Table, which preserves the join
// ordering contract (implicit leave of the old room fully visible
// before the new membership appears). All outbound sends happen on
// membership snapshots and never block: Transport.Send is required to
// be non-blocking, so one slow peer cannot stall delivery to others.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	rooms   *Table

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewEngine(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		cfg:     cfg,
		log:     logger,
		metrics: m,
		rooms:   NewTable(),
		conns:   make(map[string]*Conn),
	}
}

// Register allocates a peer id for a newly accepted connection. The
// returned Conn stays addressable until Disconnect.
func (e *Engine) Register(t Transport) (*Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.MaxConnections > 0 && len(e.conns) >= e.cfg.MaxConnections {
		return nil, ErrTooManyConnections
	}

	for attempt := 0; attempt < 3; attempt++ {
		id := newPeerID()
		if _, taken := e.conns[id]; taken {
			// Effectively unreachable with 122 bits of entropy. Try again.
			continue
		}
		c := &Conn{id: id, transport: t}
		c.alive.Store(true)
		e.conns[id] = c
		e.metrics.ConnectionOpened()
		e.log.Debug("connection registered", "peer", id)
		return c, nil
	}
	return nil, errors.New("relay: failed to allocate unique peer id")
}

// Disconnect removes c from the registry and its room, notifying former
// room-mates. It is idempotent; only the first call fans out peer-left.
// Removal is synchronous: once Disconnect returns, no later broadcast
// can reach c.
func (e *Engine) Disconnect(c *Conn) {
	e.mu.Lock()
	_, registered := e.conns[c.id]
	delete(e.conns, c.id)
	e.mu.Unlock()
	if !registered {
		return
	}
	e.metrics.ConnectionClosed()

	room, remaining, left := e.rooms.Leave(c.id)
	e.metrics.SetRooms(e.rooms.Len())
	if left {
		e.fanOut(remaining, wire.ServerMessage{Type: wire.MessageTypePeerLeft, PeerID: c.id})
	}
	e.log.Info("peer disconnected", "peer", c.id, "room", room)
}

// HandleProbeAck records a liveness response for c.
func (e *Engine) HandleProbeAck(c *Conn) {
	c.alive.Store(true)
}

// HandleMessage decodes and dispatches one inbound message. Malformed
// input and protocol misuse are answered with an error message; they
// never terminate the connection or change room state.
func (e *Engine) HandleMessage(c *Conn, raw []byte) {
	msg, err := wire.ParseClientMessage(raw)
	if err != nil {
		reason := "invalid message"
		var perr *wire.ProtocolError
		if errors.As(err, &perr) {
			reason = perr.Reason
		}
		e.metrics.Error("bad_message")
		e.send(c, wire.ErrorMessage(reason))
		return
	}
	e.metrics.Message(string(msg.Type))

	switch msg.Type {
	case wire.MessageTypeJoin:
		e.join(c, msg.Room)
	case wire.MessageTypeLeave:
		e.leave(c)
	case wire.MessageTypeSignal:
		e.signal(c, msg)
	case wire.MessageTypeBroadcast:
		e.broadcast(c, msg)
	}
}

func (e *Engine) join(c *Conn, room string) {
	prev, prevPeers, peers := e.rooms.Join(room, c.id)
	e.metrics.SetRooms(e.rooms.Len())

	if prev == room {
		// Rejoining the current room changes no membership; the joiner
		// just gets a fresh ack and room-mates are not notified.
		e.send(c, wire.ServerMessage{Type: wire.MessageTypeJoined, ID: c.id, Peers: peers})
		return
	}

	if prev != "" {
		e.fanOut(prevPeers, wire.ServerMessage{Type: wire.MessageTypePeerLeft, PeerID: c.id})
	}
	e.send(c, wire.ServerMessage{Type: wire.MessageTypeJoined, ID: c.id, Peers: peers})
	e.fanOut(peers, wire.ServerMessage{Type: wire.MessageTypePeerJoined, PeerID: c.id})

	e.log.Info("peer joined room", "peer", c.id, "room", room, "peers", len(peers))
}

func (e *Engine) leave(c *Conn) {
	room, remaining, left := e.rooms.Leave(c.id)
	e.metrics.SetRooms(e.rooms.Len())

	// A roomless leave still gets its ack; there is just nobody to tell.
	e.send(c, wire.ServerMessage{Type: wire.MessageTypeLeft})
	if left {
		e.fanOut(remaining, wire.ServerMessage{Type: wire.MessageTypePeerLeft, PeerID: c.id})
		e.log.Info("peer left room", "peer", c.id, "room", room)
	}
}

func (e *Engine) signal(c *Conn, msg wire.ClientMessage) {
	room, ok := e.rooms.RoomOf(c.id)
	if !ok {
		e.metrics.Error("not_in_room")
		e.send(c, wire.ErrorMessage("Join a room first"))
		return
	}

	out := wire.ServerMessage{Type: wire.MessageTypeSignal, From: c.id, Data: msg.Data}

	if msg.To != "" {
		if !e.rooms.Contains(room, msg.To) {
			e.metrics.Error("unknown_peer")
			e.send(c, wire.ErrorMessage(fmt.Sprintf("unknown peer %q", msg.To)))
			return
		}
		out.To = msg.To
		if target := e.conn(msg.To); target != nil {
			e.send(target, out)
			e.metrics.Relayed("direct")
		}
		return
	}

	e.relayToRoom(c, room, out)
}

func (e *Engine) broadcast(c *Conn, msg wire.ClientMessage) {
	room, ok := e.rooms.RoomOf(c.id)
	if !ok {
		e.metrics.Error("not_in_room")
		e.send(c, wire.ErrorMessage("Join a room first"))
		return
	}
	e.relayToRoom(c, room, wire.ServerMessage{Type: wire.MessageTypeBroadcast, From: c.id, Data: msg.Data})
}

// relayToRoom delivers out to every member of room except the sender.
func (e *Engine) relayToRoom(sender *Conn, room string, out wire.ServerMessage) {
	for _, id := range e.rooms.Members(room) {
		if id == sender.id {
			continue
		}
		if target := e.conn(id); target != nil {
			e.send(target, out)
			e.metrics.Relayed("fanout")
		}
	}
}

// evict removes an unresponsive connection and force-closes its
// transport. Room-mates observe the same peer-left as a clean leave.
func (e *Engine) evict(c *Conn) {
	e.metrics.Eviction()
	e.Disconnect(c)
	_ = c.transport.Close()
}

// connections snapshots the registry for the liveness monitor.
func (e *Engine) connections() []*Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*Conn, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

func (e *Engine) conn(id string) *Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conns[id]
}

func (e *Engine) fanOut(ids []string, msg wire.ServerMessage) {
	for _, id := range ids {
		if c := e.conn(id); c != nil {
			e.send(c, msg)
		}
	}
}

// send is best-effort: a refused send (closed or backpressured
// transport) is counted and dropped, never surfaced to anyone else.
func (e *Engine) send(c *Conn, msg wire.ServerMessage) {
	if err := c.transport.Send(msg); err != nil {
		e.metrics.DroppedSend()
		e.log.Debug("dropped outbound message", "peer", c.id, "type", string(msg.Type), "err", err)
	}
}
