package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quizrelay/relay/internal/sanitize"
)

func TestNewRoomCode_Format(t *testing.T) {
	taken := map[string]bool{}
	code, err := NewRoomCode(func(c string) bool { return taken[c] })
	assert.NoError(t, err)
	assert.Len(t, code, sanitize.RoomCodeLen)
	for _, r := range code {
		assert.True(t, (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}
}

func TestNewRoomCode_RetriesOnCollision(t *testing.T) {
	calls := 0
	_, err := NewRoomCode(func(c string) bool {
		calls++
		return calls < 3 // first two draws are "taken"
	})
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, calls, 3)
}

func TestNewRoomCode_ExhaustsAttempts(t *testing.T) {
	_, err := NewRoomCode(func(c string) bool { return true })
	assert.ErrorIs(t, err, ErrRoomCodeExhausted)
}

func TestMinter_NewSessionID(t *testing.T) {
	m := NewMinter()
	id1 := m.NewSessionID()
	id2 := m.NewSessionID()

	assert.NotEqual(t, id1, id2)
	assert.Contains(t, id1, sanitize.SessionIDPrefix)
	_, ok := sanitize.SessionID(id1)
	assert.True(t, ok, "minted session IDs must pass the sanitizer's format check")
}
