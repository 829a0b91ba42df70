// Package hub is the connection layer's top-level glue: it accepts
// WebSocket upgrades, owns the process-wide connection tracker, and wires
// the message dispatcher (decode -> validate -> route) to the room
// registry.
package hub

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quizrelay/relay/internal/ids"
	"github.com/quizrelay/relay/internal/logging"
	"github.com/quizrelay/relay/internal/metrics"
	"github.com/quizrelay/relay/internal/ratelimit"
	"github.com/quizrelay/relay/internal/registry"
	"github.com/quizrelay/relay/internal/room"
	"github.com/quizrelay/relay/internal/transport"
)

// Hub is the single process-wide coordinator tying the connection layer to
// room state: every accepted WebSocket passes through ServeWs, every frame
// through dispatch.
type Hub struct {
	registry       *registry.Registry
	tracker        *transport.Tracker
	minter         *ids.Minter
	restoreLimiter *ratelimit.RestoreLimiter

	allowedOrigins []string
	allowAllOrigin bool

	logger *zap.Logger
}

// New builds a Hub over the given registry and shared identifier minter.
// allowedOrigins is a comma-separated list of scheme://host origins, or
// "*" to allow any origin.
func New(reg *registry.Registry, tracker *transport.Tracker, minter *ids.Minter, restoreLimiter *ratelimit.RestoreLimiter, allowedOrigins string) *Hub {
	h := &Hub{
		registry:       reg,
		tracker:        tracker,
		minter:         minter,
		restoreLimiter: restoreLimiter,
		logger:         logging.GetLogger(),
	}

	trimmed := strings.TrimSpace(allowedOrigins)
	if trimmed == "" || trimmed == "*" {
		h.allowAllOrigin = true
		return h
	}
	for _, o := range strings.Split(trimmed, ",") {
		if o = strings.TrimSpace(o); o != "" {
			h.allowedOrigins = append(h.allowedOrigins, o)
		}
	}
	return h
}

// Registry exposes the room registry, e.g. for the lifecycle manager and
// graceful shutdown fan-out.
func (h *Hub) Registry() *registry.Registry {
	return h.registry
}

// Tracker exposes the connection tracker, e.g. for the lifecycle manager's
// heartbeat sweep.
func (h *Hub) Tracker() *transport.Tracker {
	return h.tracker
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.allowAllOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

var upgradeBufferPool = &sync.Pool{
	New: func() any { return make([]byte, 4096) },
}

// ServeWs upgrades the request to a WebSocket and hands the connection off
// to its own read/write goroutines; the gin handler returns immediately.
func (h *Hub) ServeWs(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		WriteBufferPool: upgradeBufferPool,
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := transport.NewClient(conn, uuid.New().String())
	h.tracker.Add(client)
	metrics.IncConnection()

	go func() {
		client.ReadPump(h.dispatch)

		h.tracker.Remove(client)
		metrics.DecConnection()
		h.onDisconnect(client)
	}()
	go client.WritePump()
}

func (h *Hub) onDisconnect(client *transport.Client) {
	if client.RoomCode == "" {
		return
	}
	if r, ok := h.registry.Get(client.RoomCode); ok {
		r.HandleDisconnect(client)
	}
}

// onRemove is the callback every Room is constructed with: it asks the
// registry to drop this exact Room instance.
func (h *Hub) onRemove(code string, r *room.Room) bool {
	return h.registry.Delete(code, r)
}

// roomFor looks up the room a channel is already bound to, if any.
func (h *Hub) roomFor(client *transport.Client) (*room.Room, bool) {
	if client.RoomCode == "" {
		return nil, false
	}
	return h.registry.Get(client.RoomCode)
}
