package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/mx-space/presence/internal/modules/presence"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const sessionTimeout = 10 * time.Second

type inboundMessage struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
}

func (h *Hub) registerNamespaces() {
	ns := h.sio.Of(namespacePresence, nil)
	_ = ns.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}
		h.connect(client)
	})
}

func (h *Hub) connect(client *socketio.Socket) {
	sid := string(client.Id())
	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	user, err := h.authenticate(ctx, normalizeToken(extractToken(client)))
	if err != nil {
		_ = client.Emit("message", h.gatewayMessageFormat(eventAuthFailed, "auth failed"))
		client.Disconnect(true)
		return
	}

	session, err := presence.NewSession(h.layer, user, extractGroups(client))
	if err != nil {
		_ = client.Emit("message", h.gatewayMessageFormat(eventPresenceError, err.Error()))
		client.Disconnect(true)
		return
	}

	groups := session.Groups()
	for _, group := range groups {
		client.Join(socketio.Room(group))
	}
	if err := h.open(ctx, session); err != nil {
		_ = client.Emit("message", h.gatewayMessageFormat(eventPresenceError, err.Error()))
		client.Disconnect(true)
		return
	}
	h.register <- clientMeta{sid: sid, groups: groups}
	_ = client.Emit("message", h.gatewayMessageFormat(eventConnect, "WebSocket connected"))

	_ = client.On("message", func(eventArgs ...any) {
		msg, ok := parseInboundMessage(eventArgs...)
		if !ok {
			return
		}
		if err := h.dispatch(session, msg); err != nil {
			h.logger.Warn("presence message failed",
				zap.String("sid", sid),
				zap.String("type", msg.Type),
				zap.Error(err))
			_ = client.Emit("message", h.gatewayMessageFormat(eventPresenceError, err.Error()))
		}
	})

	_ = client.On("disconnect", func(_ ...any) {
		ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
		defer cancel()
		if err := session.Leave(ctx); err != nil {
			h.logger.Warn("presence leave on disconnect failed", zap.String("sid", sid), zap.Error(err))
		}
		h.unregister <- clientMeta{sid: sid}
	})
}

// open marks a freshly connected session present in every one of its groups.
func (h *Hub) open(ctx context.Context, session *presence.Session) error {
	if err := session.Join(ctx); err != nil {
		h.logger.Warn("presence join on connect failed",
			zap.String("user", session.User().Key),
			zap.Strings("groups", session.Groups()),
			zap.Error(err))
		return err
	}
	return nil
}

func (h *Hub) authenticate(ctx context.Context, token string) (*presence.Identity, error) {
	if token == "" || h.auth == nil {
		return nil, presence.ErrAnonymousUser
	}
	user, err := h.auth.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.IsAnonymous() {
		return nil, presence.ErrAnonymousUser
	}
	return user, nil
}

var errUnknownMessage = errors.New("unknown message type")

func (h *Hub) dispatch(session *presence.Session, msg inboundMessage) error {
	ctx, cancel := context.WithTimeout(context.Background(), sessionTimeout)
	defer cancel()

	switch msg.Type {
	case messageJoin:
		return session.Join(ctx, roomsFromPayload(msg.Payload)...)
	case messageLeave:
		return session.Leave(ctx, roomsFromPayload(msg.Payload)...)
	case messageHeartbeat:
		return session.Refresh(ctx)
	default:
		return errUnknownMessage
	}
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return token
	}
	return ""
}

func extractGroups(client *socketio.Socket) []string {
	handshake := client.Handshake()
	if handshake == nil {
		return nil
	}
	return splitGroups(handshake.Query["groups"])
}

// splitGroups accepts repeated and comma separated values.
func splitGroups(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

func parseInboundMessage(args ...any) (inboundMessage, bool) {
	if len(args) == 0 || args[0] == nil {
		return inboundMessage{}, false
	}

	var msg inboundMessage
	switch raw := args[0].(type) {
	case map[string]interface{}:
		msg.Type = strFromAny(raw["type"])
		msg.Payload = mapFromAny(raw["payload"])
	case string:
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return inboundMessage{}, false
		}
	case []byte:
		if err := json.Unmarshal(raw, &msg); err != nil {
			return inboundMessage{}, false
		}
	default:
		return inboundMessage{}, false
	}

	msg.Type = strings.ToUpper(strings.TrimSpace(msg.Type))
	if msg.Type == "" {
		return inboundMessage{}, false
	}
	if msg.Payload == nil {
		msg.Payload = map[string]interface{}{}
	}
	return msg, true
}

// roomsFromPayload reads "rooms" as a list or "room" as a single name.
func roomsFromPayload(payload map[string]interface{}) []string {
	var rooms []string
	if list, ok := payload["rooms"].([]interface{}); ok {
		for _, item := range list {
			if room := strFromAny(item); room != "" {
				rooms = append(rooms, room)
			}
		}
	}
	if room := strFromAny(payload["room"]); room != "" {
		rooms = append(rooms, room)
	}
	return rooms
}

func mapFromAny(v interface{}) map[string]interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		return typed
	default:
		return map[string]interface{}{}
	}
}

func strFromAny(v interface{}) string {
	switch typed := v.(type) {
	case string:
		return strings.TrimSpace(typed)
	default:
		return ""
	}
}
