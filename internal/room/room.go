// Package room implements per-room state and the eight protocol-verb
// handlers: host/player session tracking, question timing, and the
// expiry/host-disconnect timers that eventually remove every room.
package room

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quizrelay/relay/internal/ids"
	"github.com/quizrelay/relay/internal/logging"
	"github.com/quizrelay/relay/internal/metrics"
	"github.com/quizrelay/relay/internal/protocol"
	"github.com/quizrelay/relay/internal/sanitize"
	"github.com/quizrelay/relay/internal/transport"
)

const (
	// MaxPlayersPerRoom is the wire protocol's MAX_PLAYERS_PER_ROOM constant.
	MaxPlayersPerRoom = 240
	// MaxAge is ROOM_MAX_AGE: a room is terminated this long after creation.
	MaxAge = 2 * time.Hour
	// HostDisconnectGrace is HOST_DISCONNECT_GRACE: how long a room survives
	// with no attached host channel before being terminated.
	HostDisconnectGrace = 5 * time.Minute

	reasonExpired           = "expired"
	reasonHostGraceTimeout  = "host_disconnect_timeout"
	reasonTerminated        = "terminated"
	reasonGracefulShutdown  = "graceful_shutdown"
)

// Player is one participant's server-held state.
type Player struct {
	SessionID   string
	Name        string
	Score       float64
	Client      *transport.Client
	IsConnected bool
}

// Room is one quiz session's entire in-memory state. Every mutation of
// players, timing, or host binding is serialized through mu: exactly one
// handler touches a room at a time, matching the contract that no observer
// ever sees a partially-applied handler.
type Room struct {
	Code string

	mu                   sync.Mutex
	hostSessionID        string
	hostClient           *transport.Client
	players              map[string]*Player
	createdAt            time.Time
	questionStartTime    *time.Time
	currentQuestionIndex int

	expiryTimer         *time.Timer
	hostDisconnectTimer *time.Timer

	// onRemove asks the caller (internal/hub) to remove this exact Room
	// instance from the registry and reports whether it was still the
	// registered room. A false result means the room was already replaced
	// or removed, so no further teardown happens here.
	onRemove func(code string, r *Room) bool

	// minter mints fresh player session IDs. It is shared across every
	// Room in the process: session-ID uniqueness is a process-wide
	// invariant, not a per-room one.
	minter *ids.Minter

	logger *zap.Logger
}

// New creates a freshly-minted room owned by hostSessionID, arming the
// 2-hour expiry timer. No host channel is attached yet.
func New(code, hostSessionID string, minter *ids.Minter, onRemove func(string, *Room) bool) *Room {
	r := &Room{
		Code:          code,
		hostSessionID: hostSessionID,
		players:       make(map[string]*Player),
		createdAt:     time.Now(),
		onRemove:      onRemove,
		minter:        minter,
		logger:        logging.GetLogger().With(zap.String("room_code", code)),
	}
	r.armExpiryLocked()
	return r
}

// Restored creates a room from a host-supplied snapshot (the restore_room
// verb), sanitizing and truncating the player list.
func Restored(code, hostSessionID string, minter *ids.Minter, snapshot []protocol.RestorePlayerIn, onRemove func(string, *Room) bool) *Room {
	r := New(code, hostSessionID, minter, onRemove)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range snapshot {
		if len(r.players) >= MaxPlayersPerRoom {
			break
		}
		id, ok := sanitize.SessionID(p.ID)
		if !ok {
			continue
		}
		score := p.Score
		if !sanitize.Score(score) {
			score = 0
		}
		r.players[id] = &Player{
			SessionID:   id,
			Name:        sanitize.Name(p.Name),
			Score:       score,
			IsConnected: false,
		}
	}
	r.updatePlayerGaugeLocked()
	return r
}

// HostSessionID returns the room's immutable host session token.
func (r *Room) HostSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hostSessionID
}

func (r *Room) send(c *transport.Client, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("marshal outbound frame", zap.Error(err))
		return
	}
	c.Send(raw)
}

func (r *Room) playerCountLocked() int {
	return len(r.players)
}

func (r *Room) playerViewsLocked() []protocol.PlayerView {
	views := make([]protocol.PlayerView, 0, len(r.players))
	for _, p := range r.players {
		views = append(views, protocol.PlayerView{
			SessionID:   p.SessionID,
			Name:        p.Name,
			Score:       p.Score,
			IsConnected: p.IsConnected,
		})
	}
	return views
}

func (r *Room) updatePlayerGaugeLocked() {
	metrics.RoomPlayers.WithLabelValues(r.Code).Set(float64(len(r.players)))
}

// broadcastToPlayersLocked sends v to every currently-attached player
// channel. Caller must hold mu.
func (r *Room) broadcastToPlayersLocked(v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("marshal broadcast frame", zap.Error(err))
		return
	}
	for _, p := range r.players {
		if p.Client != nil {
			p.Client.Send(raw)
		}
	}
}

// armExpiryLocked schedules the room's 2-hour expiry timer. Caller must
// hold mu (only called from New, before the Room is shared).
func (r *Room) armExpiryLocked() {
	r.expiryTimer = time.AfterFunc(MaxAge, r.onExpire)
}

func (r *Room) onExpire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(reasonExpired)
}

// armHostDisconnectTimerLocked starts the grace-period countdown. Caller
// must hold mu.
func (r *Room) armHostDisconnectTimerLocked() {
	if r.hostDisconnectTimer != nil {
		r.hostDisconnectTimer.Stop()
	}
	r.hostDisconnectTimer = time.AfterFunc(HostDisconnectGrace, r.onHostGraceExpired)
}

func (r *Room) cancelHostDisconnectTimerLocked() {
	if r.hostDisconnectTimer != nil {
		r.hostDisconnectTimer.Stop()
		r.hostDisconnectTimer = nil
	}
}

func (r *Room) onHostGraceExpired() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hostClient != nil {
		// Host reattached between the timer firing and acquiring the lock.
		return
	}
	r.removeLocked(reasonHostGraceTimeout)
}

// removeLocked asks the registry to drop this exact Room, and only on
// success broadcasts termination and stops remaining timers. Caller must
// hold mu.
func (r *Room) removeLocked(reason string) {
	if r.onRemove == nil || !r.onRemove(r.Code, r) {
		return
	}

	if r.expiryTimer != nil {
		r.expiryTimer.Stop()
	}
	r.cancelHostDisconnectTimerLocked()

	r.broadcastToPlayersLocked(protocol.QuizTerminatedOut{Type: protocol.TypeQuizTerminated})
	if r.hostClient != nil {
		r.send(r.hostClient, protocol.QuizTerminatedOut{Type: protocol.TypeQuizTerminated})
	}

	metrics.RoomsExpiredTotal.WithLabelValues(reason).Inc()
	r.logger.Info("room removed", zap.String("reason", reason))
}

// Shutdown is invoked by the lifecycle manager during graceful shutdown: it
// forces removal regardless of timers and notifies every attached channel.
func (r *Room) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(reasonGracefulShutdown)
}
