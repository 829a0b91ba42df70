package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizrelay/relay/internal/ids"
	"github.com/quizrelay/relay/internal/protocol"
	"github.com/quizrelay/relay/internal/transport"
)

func readFrame(t *testing.T, peer interface {
	SetReadDeadline(time.Time) error
	ReadMessage() (int, []byte, error)
}) string {
	t.Helper()
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := peer.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestBindNewHost_SendsRoomCreated(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")

	r.BindNewHost(hostClient)

	frame := readFrame(t, hostPeer)
	assert.Contains(t, frame, string(protocol.TypeRoomCreated))
	assert.Contains(t, frame, r.Code)
	assert.Equal(t, transport.RoleHost, hostClient.Role)
	assert.True(t, hostClient.HostedRoom)
}

func TestJoin_NewPlayer_MintsSessionAndNotifiesHost(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer) // drain room_created

	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Alice")

	joined := readFrame(t, playerPeer)
	assert.Contains(t, joined, string(protocol.TypeJoined))
	assert.Contains(t, joined, "Alice")
	assert.Equal(t, transport.RolePlayer, playerClient.Role)
	assert.NotEmpty(t, playerClient.SessionID)

	notify := readFrame(t, hostPeer)
	assert.Contains(t, notify, string(protocol.TypePlayerJoined))
}

func TestJoin_Reconnect_RebindsExistingPlayer(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer)

	firstClient, _ := newTestClient(t, "player-conn-1")
	r.Join(firstClient, "", "Bob")
	readFrame(t, hostPeer) // drain player_joined
	sessionID := firstClient.SessionID

	secondClient, secondPeer := newTestClient(t, "player-conn-2")
	r.Join(secondClient, sessionID, "ignored-on-reconnect")

	joined := readFrame(t, secondPeer)
	assert.Contains(t, joined, string(protocol.TypeJoined))
	assert.Contains(t, joined, "Bob") // original name preserved, not the reconnect payload's
	assert.Equal(t, sessionID, secondClient.SessionID)

	notify := readFrame(t, hostPeer)
	assert.Contains(t, notify, string(protocol.TypePlayerReconnected))
}

func TestJoin_RoomFullRejectsNewPlayer(t *testing.T) {
	r, _ := newRoomForTest(t)
	r.mu.Lock()
	for i := 0; i < MaxPlayersPerRoom; i++ {
		id := ids.NewMinter().NewSessionID()
		r.players[id] = &Player{SessionID: id, Name: "filler"}
	}
	r.mu.Unlock()

	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Latecomer")

	frame := readFrame(t, playerPeer)
	assert.Contains(t, frame, protocol.MsgRoomFull)
}

func TestSubmitAnswer_DropsOverlongAnswerData(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer)

	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Carol")
	readFrame(t, playerPeer)
	readFrame(t, hostPeer)

	overlong := make([]any, maxAnswerLen+1)
	r.SubmitAnswer(playerClient, overlong)

	// Nothing should have been forwarded: write a follow-up frame via
	// SubmitAnswer with a valid payload and confirm it's the first thing
	// the host sees.
	r.SubmitAnswer(playerClient, []any{float64(1)})
	frame := readFrame(t, hostPeer)
	assert.Contains(t, frame, string(protocol.TypePlayerAnswered))
}

func TestSubmitAnswer_DropsNonArrayAnswerData(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer)

	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Dana")
	readFrame(t, playerPeer)
	readFrame(t, hostPeer)

	r.SubmitAnswer(playerClient, "not-an-array")

	// Nothing should have been forwarded: write a follow-up frame via
	// SubmitAnswer with a valid payload and confirm it's the first thing
	// the host sees.
	r.SubmitAnswer(playerClient, []any{float64(2)})
	frame := readFrame(t, hostPeer)
	assert.Contains(t, frame, string(protocol.TypePlayerAnswered))
}

func TestSubmitAnswer_UnknownPlayerGetsError(t *testing.T) {
	r, _ := newRoomForTest(t)
	strangerClient, strangerPeer := newTestClient(t, "stranger-conn")
	strangerClient.Role = transport.RolePlayer
	strangerClient.SessionID = "sess-does-not-exist"

	r.SubmitAnswer(strangerClient, []any{float64(0)})

	frame := readFrame(t, strangerPeer)
	assert.Contains(t, frame, protocol.MsgPlayerNotFound)
}

func TestStartQuestion_NonHostIsSilentlyIgnored(t *testing.T) {
	r, _ := newRoomForTest(t)
	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Dave")
	readFrame(t, playerPeer) // drain joined

	r.StartQuestion(playerClient, protocol.StartQuestionIn{Question: "2+2?"})

	// No frame should arrive; confirm by racing a short deadline.
	require.NoError(t, playerPeer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := playerPeer.ReadMessage()
	assert.Error(t, err, "a non-host start_question must produce no broadcast")
}

func TestStartQuestion_HostBroadcastsWithCoercedDuration(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer)

	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Eve")
	readFrame(t, playerPeer)
	readFrame(t, hostPeer)

	r.StartQuestion(hostClient, protocol.StartQuestionIn{
		Question: "Capital of France?",
		Options:  []string{"Paris", "London"},
		Index:    0,
		Total:    5,
		Duration: "not-a-number",
	})

	frame := readFrame(t, playerPeer)
	assert.Contains(t, frame, string(protocol.TypeQuestion))
	assert.Contains(t, frame, `"duration":30`)
}

func TestCoerceDuration(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want float64
	}{
		{"valid", float64(45), 45},
		{"missing", nil, defaultDurationS},
		{"string", "30", defaultDurationS},
		{"zero", float64(0), defaultDurationS},
		{"too_large", float64(81), defaultDurationS},
		{"boundary_max", float64(80), 80},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, coerceDuration(tc.in))
		})
	}
}

func TestSendResults_NonHostIsSilentlyIgnored(t *testing.T) {
	r, _ := newRoomForTest(t)
	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Frank")
	readFrame(t, playerPeer)

	r.SendResults(playerClient, protocol.SendResultsIn{IsFinal: true})

	require.NoError(t, playerPeer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := playerPeer.ReadMessage()
	assert.Error(t, err)
}

func TestSendResults_UpdatesScoresAndNotifiesPlayers(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer)

	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Grace")
	readFrame(t, playerPeer)
	readFrame(t, hostPeer)

	sessionID := playerClient.SessionID
	r.SendResults(hostClient, protocol.SendResultsIn{
		Correct:      []int{0},
		IsFinal:      true,
		PlayerScores: map[string]float64{sessionID: 100},
	})

	frame := readFrame(t, playerPeer)
	assert.Contains(t, frame, string(protocol.TypeResult))
	assert.Contains(t, frame, `"playerScore":100`)
}

func TestTerminate_HostOnlyRemovesRoom(t *testing.T) {
	r, removed := newRoomForTest(t)
	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Hank")
	readFrame(t, playerPeer)

	r.Terminate(playerClient)
	assert.False(t, *removed, "a non-host terminate must not tear the room down")

	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer)

	r.Terminate(hostClient)
	assert.True(t, *removed)
}

func TestHandleDisconnect_PlayerMarkedOfflineAndHostNotified(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, hostPeer := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)
	readFrame(t, hostPeer)

	playerClient, playerPeer := newTestClient(t, "player-conn")
	r.Join(playerClient, "", "Ivy")
	readFrame(t, playerPeer)
	readFrame(t, hostPeer)

	r.HandleDisconnect(playerClient)

	frame := readFrame(t, hostPeer)
	assert.Contains(t, frame, string(protocol.TypePlayerLeft))

	r.mu.Lock()
	p := r.players[playerClient.SessionID]
	r.mu.Unlock()
	assert.False(t, p.IsConnected)
	assert.Nil(t, p.Client)
}

func TestHandleDisconnect_HostArmsGraceTimer(t *testing.T) {
	r, _ := newRoomForTest(t)
	hostClient, _ := newTestClient(t, "host-conn")
	r.BindNewHost(hostClient)

	r.HandleDisconnect(hostClient)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Nil(t, r.hostClient)
	assert.NotNil(t, r.hostDisconnectTimer)
}
