// Package ids mints the two identifier kinds the relay hands out: 4-character
// room codes and opaque session tokens.
package ids

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"k8s.io/utils/set"

	"github.com/quizrelay/relay/internal/sanitize"
)

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxRoomCodeAttempts bounds the rejection-sampling retry loop; the
// birthday-bound behavior this implies for large numbers of concurrent
// rooms is accepted, not fixed.
const maxRoomCodeAttempts = 100

// ErrRoomCodeExhausted is returned when no unused room code could be drawn
// within maxRoomCodeAttempts.
var ErrRoomCodeExhausted = fmt.Errorf("room code space exhausted after %d attempts", maxRoomCodeAttempts)

// NewRoomCode draws a random sanitize.RoomCodeLen-character code and
// rejection-samples it against exists, which should report whether a code
// is currently held by the registry.
func NewRoomCode(exists func(code string) bool) (string, error) {
	for i := 0; i < maxRoomCodeAttempts; i++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		if !exists(code) {
			return code, nil
		}
	}
	return "", ErrRoomCodeExhausted
}

func randomCode() (string, error) {
	buf := make([]byte, sanitize.RoomCodeLen)
	alphabetLen := big.NewInt(int64(len(roomCodeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("drawing room code byte: %w", err)
		}
		buf[i] = roomCodeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// Minter mints session tokens and tracks every token it has issued this
// process's lifetime so a (statistically impossible, but checked per
// invariant 6) collision is retried rather than silently handed out twice.
type Minter struct {
	mu   sync.Mutex
	seen set.Set[string]
}

// NewMinter returns a ready-to-use session token minter.
func NewMinter() *Minter {
	return &Minter{seen: set.New[string]()}
}

// NewSessionID mints a fresh, globally-unique (for this process) session
// token of the form "sess-<uuid>".
func (m *Minter) NewSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	for {
		id := sanitize.SessionIDPrefix + uuid.New().String()
		if !m.seen.Has(id) {
			m.seen.Insert(id)
			return id
		}
	}
}
