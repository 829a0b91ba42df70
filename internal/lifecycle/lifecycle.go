// Package lifecycle implements the relay's two background duties: sweeping
// dead connections on a heartbeat, and fanning out termination on graceful
// shutdown. It depends on registry and transport directly rather than on
// hub, so hub can depend on it without an import cycle.
package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/quizrelay/relay/internal/logging"
	"github.com/quizrelay/relay/internal/registry"
	"github.com/quizrelay/relay/internal/transport"
)

// HeartbeatInterval is the wire protocol's HEARTBEAT_INTERVAL constant.
const HeartbeatInterval = 30 * time.Second

// Manager runs the heartbeat sweep and owns graceful shutdown.
type Manager struct {
	tracker  *transport.Tracker
	registry *registry.Registry
	interval time.Duration
	logger   *zap.Logger
}

// New builds a lifecycle manager over the given connection tracker and
// room registry.
func New(tracker *transport.Tracker, reg *registry.Registry) *Manager {
	return &Manager{
		tracker:  tracker,
		registry: reg,
		interval: HeartbeatInterval,
		logger:   logging.GetLogger(),
	}
}

// Run sweeps connections every HeartbeatInterval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep closes any connection that did not pong since the previous sweep,
// and marks every surviving connection not-alive before pinging it again.
func (m *Manager) sweep() {
	for _, c := range m.tracker.Snapshot() {
		if !c.IsAlive() {
			m.logger.Info("closing unresponsive connection", zap.String("conn_id", c.ID()))
			c.Close()
			continue
		}
		c.MarkNotAlive()
		if err := c.Ping(); err != nil {
			c.Close()
		}
	}
}

// Shutdown tears every room down (broadcasting quiz_terminated and removing
// it from the registry) and then closes every remaining connection. Called
// once, on receipt of a termination signal.
func (m *Manager) Shutdown(ctx context.Context) {
	for _, r := range m.registry.Snapshot() {
		r.Shutdown()
	}

	for _, c := range m.tracker.Snapshot() {
		c.Close()
	}

	m.logger.Info("lifecycle shutdown complete")
}
