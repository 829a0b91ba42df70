package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizrelay/relay/internal/ids"
	"github.com/quizrelay/relay/internal/room"
)

func newTestRoom(code string) *room.Room {
	return room.New(code, "host-sess", ids.NewMinter(), func(string, *room.Room) bool { return true })
}

func TestInsert_RejectsDuplicateCode(t *testing.T) {
	reg := New()
	r1 := newTestRoom("AAAA")
	require.NoError(t, reg.Insert("AAAA", r1))

	r2 := newTestRoom("AAAA")
	err := reg.Insert("AAAA", r2)
	assert.ErrorIs(t, err, ErrCodeTaken)
	assert.Equal(t, 1, reg.Len())
}

func TestGetAndExists(t *testing.T) {
	reg := New()
	r := newTestRoom("BBBB")
	require.NoError(t, reg.Insert("BBBB", r))

	got, ok := reg.Get("BBBB")
	assert.True(t, ok)
	assert.Same(t, r, got)

	assert.True(t, reg.Exists("BBBB"))
	assert.False(t, reg.Exists("ZZZZ"))
}

func TestDelete_StructuralIdentityGuard(t *testing.T) {
	reg := New()
	original := newTestRoom("CCCC")
	require.NoError(t, reg.Insert("CCCC", original))

	stale := newTestRoom("CCCC")
	assert.False(t, reg.Delete("CCCC", stale), "deleting with a stale pointer must not remove the current room")
	assert.True(t, reg.Exists("CCCC"))

	assert.True(t, reg.Delete("CCCC", original))
	assert.False(t, reg.Exists("CCCC"))
}

func TestDelete_MissingCodeReturnsFalse(t *testing.T) {
	reg := New()
	r := newTestRoom("DDDD")
	assert.False(t, reg.Delete("DDDD", r))
}

func TestSnapshotAndLen(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Insert("EEEE", newTestRoom("EEEE")))
	require.NoError(t, reg.Insert("FFFF", newTestRoom("FFFF")))

	assert.Equal(t, 2, reg.Len())
	assert.Len(t, reg.Snapshot(), 2)
}
