package gateway

import (
	"context"
	"sync"

	"github.com/mx-space/presence/internal/modules/presence"
	pkgredis "github.com/mx-space/presence/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespacePresence  = "/presence"
	relayChannelSuffix = ":presence:fanout"

	messageJoin      = "JOIN"
	messageLeave     = "LEAVE"
	messageHeartbeat = "HEARTBEAT"

	eventConnect       = "GATEWAY_CONNECT"
	eventAuthFailed    = "AUTH_FAILED"
	eventPresenceError = "PRESENCE_ERROR"
)

// Authenticator maps a handshake token to the user a connection acts for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*presence.Identity, error)
}

type AuthenticatorFunc func(ctx context.Context, token string) (*presence.Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (*presence.Identity, error) {
	return f(ctx, token)
}

// relayMessage carries a group event between server instances.
type relayMessage struct {
	Origin string         `json:"origin"`
	Group  string         `json:"group"`
	Event  presence.Event `json:"event"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type clientMeta struct {
	sid    string
	groups []string
}

// Hub serves the presence namespace and relays group events across instances.
type Hub struct {
	mu sync.RWMutex

	sidGroups  map[string][]string
	groupCount map[string]int

	register   chan clientMeta
	unregister chan clientMeta

	origin  string
	channel string

	layer  *presence.Layer
	auth   Authenticator
	rc     *pkgredis.Client
	logger *zap.Logger
	sio    *socketio.Server
}
