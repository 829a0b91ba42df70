// Package registry implements the process-wide roomCode -> Room mapping:
// the single point of coordination the dispatcher consults before handing a
// frame to a specific room.
package registry

import (
	"errors"
	"sync"

	"github.com/quizrelay/relay/internal/metrics"
	"github.com/quizrelay/relay/internal/room"
)

// ErrCodeTaken is returned by Insert when roomCode already maps to a room;
// the caller (the hub's create_room and restore_room paths) retries with a
// freshly minted code.
var ErrCodeTaken = errors.New("room code already in use")

// Registry is a single mutex-guarded map with fail-on-collision Insert
// semantics: a code already held by a room is never silently overwritten.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room.Room
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{rooms: make(map[string]*room.Room)}
}

// Insert adds r under code, failing with ErrCodeTaken if code is already
// held by a (possibly different) room.
func (reg *Registry) Insert(code string, r *room.Room) error {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.rooms[code]; exists {
		return ErrCodeTaken
	}
	reg.rooms[code] = r
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	metrics.RoomsCreatedTotal.Inc()
	return nil
}

// Get looks up the room currently bound to code.
func (reg *Registry) Get(code string) (*room.Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	r, ok := reg.rooms[code]
	return r, ok
}

// Exists reports whether code is currently in use; used by the identifier
// mint's rejection sampling.
func (reg *Registry) Exists(code string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	_, ok := reg.rooms[code]
	return ok
}

// Delete removes code from the registry, but only if the room currently
// stored there is structurally identical (same pointer) to expect. This
// guards against a grace-period timer firing after the room it was armed
// against has already been replaced by a new one under the same code.
func (reg *Registry) Delete(code string, expect *room.Room) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	current, ok := reg.rooms[code]
	if !ok || current != expect {
		return false
	}
	delete(reg.rooms, code)
	metrics.ActiveRooms.Set(float64(len(reg.rooms)))
	metrics.RoomPlayers.DeleteLabelValues(code)
	return true
}

// Snapshot returns every room currently registered, for lifecycle-wide
// operations like graceful shutdown broadcast.
func (reg *Registry) Snapshot() []*room.Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	out := make([]*room.Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

// Len reports how many rooms are currently registered.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
