package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mx-space/presence/internal/modules/presence"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

func (h *Hub) gatewayMessageFormat(event string, payload interface{}) gatewayPayload {
	return gatewayPayload{
		Type: event,
		Data: payload,
	}
}

// GroupSend delivers event to local members of group and relays it to other instances.
func (h *Hub) GroupSend(ctx context.Context, group string, event presence.Event) error {
	h.deliver(group, event)

	data, err := json.Marshal(relayMessage{Origin: h.origin, Group: group, Event: event})
	if err != nil {
		return err
	}
	if err := h.rc.Publish(ctx, h.channel, string(data)); err != nil {
		return fmt.Errorf("relay presence event: %w", err)
	}
	return nil
}

func (h *Hub) deliver(group string, event presence.Event) {
	err := h.sio.Of(namespacePresence, nil).
		To(socketio.Room(group)).
		Emit("message", h.gatewayMessageFormat(string(event.Type), event))
	if err != nil {
		h.logger.Warn("gateway emit failed", zap.String("group", group), zap.Error(err))
	}
}

// handleRelay delivers a message published by another instance. It reports whether the
// message was delivered.
func (h *Hub) handleRelay(payload string) bool {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		h.logger.Debug("gateway relay message dropped", zap.Error(err))
		return false
	}
	if msg.Origin == h.origin || msg.Group == "" {
		return false
	}
	h.deliver(msg.Group, msg.Event)
	return true
}

// subscribeRelay listens for group events from other server instances.
func (h *Hub) subscribeRelay(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			h.handleRelay(redisMsg.Payload)
		}
	}
}
