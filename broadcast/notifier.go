// Package broadcast pushes "state changed, refetch" signals to portal
// subscribers. Notifications carry no entity payload: receivers re-fetch
// from the REST layer so the database stays the only source of truth.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hoshizuki/campfire/server/cache"
	"go.uber.org/zap"
)

// Command kinds understood by portal subscribers.
const (
	CmdRefetchPortal    = "refetch-portal"    // portal content changed
	CmdChangeItem       = "change-item"       // current item index moved
	CmdRefetchEncounter = "refetch-encounter" // linked encounter changed
	CmdDeleted          = "deleted"           // portal view removed
)

// Command is the discriminated message sent over the push channel.
type Command struct {
	Command     string `json:"command"`
	ItemIndex   *int   `json:"itemIndex,omitempty"`
	EncounterID *int64 `json:"encounterId,omitempty"`
}

// Channel returns the pub/sub channel name for a portal view.
func Channel(portalViewID int64) string {
	return fmt.Sprintf("portal:%d", portalViewID)
}

// Notifier publishes commands to per-portal pub/sub channels.
type Notifier struct {
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(pubsub cache.PubSub, logger *zap.Logger) *Notifier {
	return &Notifier{pubsub: pubsub, logger: logger}
}

// Notify sends cmd to every client currently subscribed to the portal view.
// Delivery is at-most-once and best-effort: callers must invoke it only
// after the triggering write has committed, and a failed publish never
// propagates back to the write path.
func (n *Notifier) Notify(ctx context.Context, portalViewID int64, cmd Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		n.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}
	if err := n.pubsub.Publish(ctx, Channel(portalViewID), string(data)); err != nil {
		n.logger.Warn("broadcast publish failed",
			zap.Int64("portal_view_id", portalViewID),
			zap.String("command", cmd.Command),
			zap.Error(err))
	}
}
