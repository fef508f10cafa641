package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/cache"
	"github.com/hoshizuki/campfire/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PortalFeed wires the subscribe/unsubscribe message handlers. Each
// subscription opens a pub/sub feed on the portal's channel and forwards
// every command to the session as a portal-command packet.
type PortalFeed struct {
	db     *gorm.DB
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewPortalFeed creates a PortalFeed.
func NewPortalFeed(db *gorm.DB, pubsub cache.PubSub, logger *zap.Logger) *PortalFeed {
	return &PortalFeed{db: db, pubsub: pubsub, logger: logger}
}

// RegisterRoutes installs the portal feed message handlers on the router.
func (f *PortalFeed) RegisterRoutes(r *Router) {
	r.On("subscribe", f.handleSubscribe)
	r.On("unsubscribe", f.handleUnsubscribe)
	r.On("ping", f.handlePing)
}

type subscribeRequest struct {
	PortalViewID int64 `json:"portalViewId"`
}

type portalCommandPayload struct {
	PortalViewID int64           `json:"portalViewId"`
	Command      json.RawMessage `json:"command"`
}

func (f *PortalFeed) handleSubscribe(ctx context.Context, s *ViewerSession, payload json.RawMessage) error {
	var req subscribeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode subscribe: %w", err)
	}

	portal, err := f.visiblePortal(s.AccountID, req.PortalViewID)
	if err != nil {
		f.sendError(s, "subscribe", err.Error())
		return nil
	}

	msgs, cancel, err := f.pubsub.Subscribe(context.Background(), broadcast.Channel(portal.ID))
	if err != nil {
		f.sendError(s, "subscribe", "subscribe failed")
		return fmt.Errorf("pubsub subscribe: %w", err)
	}
	s.AddSubscription(portal.ID, cancel)
	go f.forward(s, portal.ID, msgs)

	f.sendAck(s, "subscribed", portal.ID)
	f.logger.Info("portal subscribed",
		zap.Int64("session_id", s.ID),
		zap.Int64("portal_view_id", portal.ID))
	return nil
}

func (f *PortalFeed) handleUnsubscribe(ctx context.Context, s *ViewerSession, payload json.RawMessage) error {
	var req subscribeRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decode unsubscribe: %w", err)
	}
	if s.RemoveSubscription(req.PortalViewID) {
		f.sendAck(s, "unsubscribed", req.PortalViewID)
	}
	return nil
}

func (f *PortalFeed) handlePing(ctx context.Context, s *ViewerSession, payload json.RawMessage) error {
	type pongPayload struct {
		ServerTS int64 `json:"serverTs"`
	}
	data, _ := json.Marshal(pongPayload{ServerTS: time.Now().UnixMilli()})
	s.Send(&Packet{Type: "pong", Payload: data})
	return nil
}

// forward relays commands from the pub/sub feed to the session until the feed
// closes. A deleted command also tears down the subscription server-side.
func (f *PortalFeed) forward(s *ViewerSession, portalViewID int64, msgs <-chan *cache.Message) {
	for msg := range msgs {
		payload, err := json.Marshal(portalCommandPayload{
			PortalViewID: portalViewID,
			Command:      json.RawMessage(msg.Payload),
		})
		if err != nil {
			continue
		}
		s.Send(&Packet{Type: "portal-command", Payload: payload})

		var cmd broadcast.Command
		if json.Unmarshal([]byte(msg.Payload), &cmd) == nil && cmd.Command == broadcast.CmdDeleted {
			s.RemoveSubscription(portalViewID)
			return
		}
	}
}

// visiblePortal loads the portal view and checks the account can see it.
// Non-members get the same error as a missing portal.
func (f *PortalFeed) visiblePortal(accountID, portalViewID int64) (*model.PortalView, error) {
	var portal model.PortalView
	if err := f.db.First(&portal, portalViewID).Error; err != nil {
		return nil, errors.New("portal not found")
	}
	var member model.LibraryMember
	err := f.db.Where("library_id = ? AND account_id = ?", portal.LibraryID, accountID).
		First(&member).Error
	if err != nil {
		return nil, errors.New("portal not found")
	}
	return &portal, nil
}

func (f *PortalFeed) sendAck(s *ViewerSession, typ string, portalViewID int64) {
	data, _ := json.Marshal(subscribeRequest{PortalViewID: portalViewID})
	s.Send(&Packet{Type: typ, Payload: data})
}

func (f *PortalFeed) sendError(s *ViewerSession, op, msg string) {
	type errPayload struct {
		Op    string `json:"op"`
		Error string `json:"error"`
	}
	data, _ := json.Marshal(errPayload{Op: op, Error: msg})
	s.Send(&Packet{Type: "error", Payload: data})
}
