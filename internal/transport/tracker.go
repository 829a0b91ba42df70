package transport

import "sync"

// Tracker is the set of currently-connected Clients, consulted by
// internal/lifecycle's heartbeat sweep and graceful-shutdown fan-out.
type Tracker struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewTracker returns an empty connection tracker.
func NewTracker() *Tracker {
	return &Tracker{clients: make(map[*Client]struct{})}
}

// Add registers c as connected.
func (t *Tracker) Add(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[c] = struct{}{}
}

// Remove unregisters c.
func (t *Tracker) Remove(c *Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clients, c)
}

// Snapshot returns every currently-tracked client.
func (t *Tracker) Snapshot() []*Client {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Client, 0, len(t.clients))
	for c := range t.clients {
		out = append(out, c)
	}
	return out
}

// Len reports how many connections are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}
