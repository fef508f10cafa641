package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hoshizuki/campfire/server/broadcast"
	"go.uber.org/zap"
)

// PortalCommand is one received push-channel command with the portal view it
// addresses.
type PortalCommand struct {
	PortalViewID int64
	Command      broadcast.Command
}

// Socket is the client side of the push channel. It holds one WebSocket
// connection, multiplexing any number of portal subscriptions over it, and
// delivers received commands on a single channel. Commands carry no entity
// payload: the receiver's only reaction is to refetch over REST.
type Socket struct {
	conn     *websocket.Conn
	commands chan PortalCommand
	logger   *zap.Logger

	mu     sync.Mutex
	seq    uint64
	closed bool
	done   chan struct{}
}

type wsPacket struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsSubscribe struct {
	PortalViewID int64 `json:"portalViewId"`
}

type wsPortalCommand struct {
	PortalViewID int64           `json:"portalViewId"`
	Command      json.RawMessage `json:"command"`
}

// DialSocket connects to the server's /ws endpoint with the given JWT token
// and starts the read loop.
func DialSocket(ctx context.Context, wsURL, token string, logger *zap.Logger) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?token="+token, nil)
	if err != nil {
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	s := &Socket{
		conn:     conn,
		commands: make(chan PortalCommand, 64),
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Commands is the stream of received portal commands. It closes when the
// connection drops or Close is called.
func (s *Socket) Commands() <-chan PortalCommand {
	return s.commands
}

// Subscribe asks the server for the given portal view's command feed.
func (s *Socket) Subscribe(portalViewID int64) error {
	return s.send("subscribe", wsSubscribe{PortalViewID: portalViewID})
}

// Unsubscribe drops the given portal view's command feed.
func (s *Socket) Unsubscribe(portalViewID int64) error {
	return s.send("unsubscribe", wsSubscribe{PortalViewID: portalViewID})
}

func (s *Socket) send(typ string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("socket closed")
	}
	s.seq++
	pkt := wsPacket{Seq: s.seq, Type: typ, Payload: data}
	msg, err := json.Marshal(pkt)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *Socket) readLoop() {
	defer func() {
		s.Close()
		close(s.commands)
	}()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var pkt wsPacket
		if err := json.Unmarshal(raw, &pkt); err != nil {
			s.logger.Warn("malformed push packet", zap.Error(err))
			continue
		}
		if pkt.Type != "portal-command" {
			continue
		}
		var pc wsPortalCommand
		if err := json.Unmarshal(pkt.Payload, &pc); err != nil {
			s.logger.Warn("malformed portal command", zap.Error(err))
			continue
		}
		var cmd broadcast.Command
		if err := json.Unmarshal(pc.Command, &cmd); err != nil {
			s.logger.Warn("malformed portal command body", zap.Error(err))
			continue
		}
		select {
		case s.commands <- PortalCommand{PortalViewID: pc.PortalViewID, Command: cmd}:
		case <-s.done:
			return
		default:
			s.logger.Warn("command channel full, dropping",
				zap.Int64("portal_view_id", pc.PortalViewID))
		}
	}
}

// Close shuts the connection down. Safe to call more than once.
func (s *Socket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = s.conn.Close()
}
