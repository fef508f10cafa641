package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadlineS = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var sessionSeq atomic.Int64

// ViewerSession represents one connected portal viewer's WebSocket session.
// A session may subscribe to several portal views at once; each subscription
// holds the cancel func of its pub/sub feed.
type ViewerSession struct {
	ID        int64
	AccountID int64
	Conn      *websocket.Conn

	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu   sync.Mutex
	subs map[int64]func() // portalViewID → pub/sub cancel

	logger *zap.Logger
}

// NewViewerSession creates a ViewerSession with its write goroutine started.
func NewViewerSession(accountID int64, conn *websocket.Conn, logger *zap.Logger) *ViewerSession {
	s := &ViewerSession{
		ID:        sessionSeq.Add(1),
		AccountID: accountID,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		subs:      make(map[int64]func()),
		logger:    logger,
	}
	go s.writePump()
	return s
}

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *ViewerSession) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.Int64("account_id", s.AccountID),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and sends it non-blocking. Drops if channel full or closed.
func (s *ViewerSession) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendRaw sends raw bytes non-blocking. Drops if channel full or closed.
func (s *ViewerSession) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping packet",
				zap.Int64("account_id", s.AccountID))
		}
	}
}

// AddSubscription records a portal subscription's cancel func. Replaces and
// cancels a previous subscription to the same portal view.
func (s *ViewerSession) AddSubscription(portalViewID int64, cancel func()) {
	s.mu.Lock()
	old := s.subs[portalViewID]
	s.subs[portalViewID] = cancel
	s.mu.Unlock()
	if old != nil {
		old()
	}
}

// RemoveSubscription cancels and drops the subscription for a portal view.
// Returns false if none existed.
func (s *ViewerSession) RemoveSubscription(portalViewID int64) bool {
	s.mu.Lock()
	cancel, ok := s.subs[portalViewID]
	delete(s.subs, portalViewID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Subscriptions returns a snapshot of subscribed portal view IDs.
func (s *ViewerSession) Subscriptions() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.subs))
	for id := range s.subs {
		out = append(out, id)
	}
	return out
}

// CancelAllSubscriptions tears down every portal feed this session holds.
func (s *ViewerSession) CancelAllSubscriptions() {
	s.mu.Lock()
	cancels := make([]func(), 0, len(s.subs))
	for _, c := range s.subs {
		cancels = append(cancels, c)
	}
	s.subs = make(map[int64]func())
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Close signals the writePump to shut down.
func (s *ViewerSession) Close() {
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed returns true if the session has been closed.
func (s *ViewerSession) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (s *ViewerSession) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadlineS))
}
