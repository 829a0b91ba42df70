package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the quiz relay server.
//
// Naming convention: namespace_subsystem_name
// - namespace: quiz_relay (application-level grouping)
// - subsystem: websocket, room, ratelimit (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: current state (connections, rooms, players)
// - Counter: cumulative events (messages processed, frames dropped)
// - Histogram: latency distributions (dispatch time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz_relay",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of active rooms.
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz_relay",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPlayers tracks the number of players in each room.
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quiz_relay",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players in each room",
	}, []string{"room_code"})

	// WebsocketEvents tracks the total number of wire-protocol frames processed.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz_relay",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total wire-protocol frames processed",
	}, []string{"frame_type", "status"})

	// MessageProcessingDuration tracks the time spent dispatching a frame to its handler.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quiz_relay",
		Subsystem: "websocket",
		Name:      "message_processing_seconds",
		Help:      "Time spent dispatching a frame to its handler",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"frame_type"})

	// RoomsCreatedTotal tracks the cumulative number of rooms created.
	RoomsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz_relay",
		Subsystem: "room",
		Name:      "created_total",
		Help:      "Total number of rooms created",
	})

	// RoomsExpiredTotal tracks why a room was removed from the registry.
	RoomsExpiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz_relay",
		Subsystem: "room",
		Name:      "closed_total",
		Help:      "Total number of rooms removed, labeled by reason",
	}, []string{"reason"})

	// RateLimitExceeded tracks the total number of frames that exceeded a rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz_relay",
		Subsystem: "ratelimit",
		Name:      "exceeded_total",
		Help:      "Total number of frames that exceeded a rate limit",
	}, []string{"limiter", "action"})

	// ReconnectsTotal tracks successful host/player reconnection and restore attempts.
	ReconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz_relay",
		Subsystem: "room",
		Name:      "reconnects_total",
		Help:      "Total number of successful reconnect/restore operations",
	}, []string{"kind"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
