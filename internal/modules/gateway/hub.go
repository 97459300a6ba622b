package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/mx-space/presence/internal/modules/presence"
	pkgredis "github.com/mx-space/presence/internal/pkg/redis"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

// NewHub wires the hub as the layer's notifier. rc carries the cross-instance relay and prefix
// namespaces its channel.
func NewHub(layer *presence.Layer, auth Authenticator, rc *pkgredis.Client, prefix string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		sidGroups:  make(map[string][]string),
		groupCount: make(map[string]int),
		register:   make(chan clientMeta, 256),
		unregister: make(chan clientMeta, 256),
		origin:     uuid.NewString(),
		channel:    prefix + relayChannelSuffix,
		layer:      layer,
		auth:       auth,
		rc:         rc,
		logger:     logger,
		sio:        socketio.NewServer(nil, nil),
	}
	layer.SetNotifier(h)
	h.registerNamespaces()
	return h
}

// Run starts the hub loop and relay subscriber.
func (h *Hub) Run(ctx context.Context) {
	go h.subscribeRelay(ctx)

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)
		}
	}
}

func (h *Hub) registerClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sidGroups[c.sid]; ok {
		return
	}
	h.sidGroups[c.sid] = c.groups
	for _, group := range c.groups {
		h.groupCount[group]++
	}
}

func (h *Hub) unregisterClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()

	groups, ok := h.sidGroups[c.sid]
	if !ok {
		return
	}
	delete(h.sidGroups, c.sid)
	for _, group := range groups {
		if h.groupCount[group] > 1 {
			h.groupCount[group]--
		} else {
			delete(h.groupCount, group)
		}
	}
}

// ClientCount returns the number of local connections, optionally filtered by group.
func (h *Hub) ClientCount(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if group == "" {
		return len(h.sidGroups)
	}
	return h.groupCount[group]
}

// GroupCounts returns a copy of the per-group connection counts.
func (h *Hub) GroupCounts() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]int, len(h.groupCount))
	for group, n := range h.groupCount {
		out[group] = n
	}
	return out
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}
