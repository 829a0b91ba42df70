package room

import (
	"time"

	"github.com/quizrelay/relay/internal/metrics"
	"github.com/quizrelay/relay/internal/protocol"
	"github.com/quizrelay/relay/internal/sanitize"
	"github.com/quizrelay/relay/internal/transport"
)

const (
	maxAnswerLen      = 20
	maxQuestionLen    = 4000
	maxOptionsLen     = 20
	maxOptionTextLen  = 500
	defaultDurationS  = 30
	minDurationS      = 0
	maxDurationS      = 80
)

// BindNewHost attaches client as the host of a room it just created,
// responding with room_created. Called right after the room is inserted
// into the registry; it takes mu like every other handler.
func (r *Room) BindNewHost(client *transport.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hostClient = client
	client.RoomCode = r.Code
	client.SessionID = r.hostSessionID
	client.Role = transport.RoleHost
	client.HostedRoom = true

	r.send(client, protocol.RoomCreatedOut{
		Type:      protocol.TypeRoomCreated,
		RoomID:    r.Code,
		SessionID: r.hostSessionID,
	})
}

// ReconnectHost attaches client as host if sessionID matches this room's
// immutable host token, cancelling the grace-period timer. A mismatch
// yields InvalidSession; the caller (the dispatcher) has already ruled out
// "room missing" before reaching here.
func (r *Room) ReconnectHost(client *transport.Client, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessionID != r.hostSessionID {
		r.send(client, protocol.ErrorOut{Type: protocol.TypeError, Message: protocol.MsgInvalidSession})
		return
	}

	r.cancelHostDisconnectTimerLocked()
	r.hostClient = client
	client.RoomCode = r.Code
	client.SessionID = sessionID
	client.Role = transport.RoleHost
	client.HostedRoom = true

	metrics.ReconnectsTotal.WithLabelValues("host").Inc()
	r.send(client, protocol.HostReconnectedOut{
		Type:    protocol.TypeHostReconnected,
		RoomID:  r.Code,
		Players: r.playerViewsLocked(),
	})
}

// AttachRestoredHost binds client as host immediately after the room was
// constructed by Restored, with no session check (the room was just
// created for this exact host token).
func (r *Room) AttachRestoredHost(client *transport.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hostClient = client
	client.RoomCode = r.Code
	client.SessionID = r.hostSessionID
	client.Role = transport.RoleHost
	client.HostedRoom = true

	metrics.ReconnectsTotal.WithLabelValues("restore").Inc()
	r.send(client, protocol.HostReconnectedOut{
		Type:       protocol.TypeHostReconnected,
		RoomID:     r.Code,
		Players:    r.playerViewsLocked(),
		IsRestored: true,
	})
}

// Join binds client to this room as a player, either rebinding to an
// existing player (reconnect) or minting a new one.
func (r *Room) Join(client *transport.Client, rawSessionID, rawName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rawSessionID != "" {
		if id, ok := sanitize.SessionID(rawSessionID); ok {
			if p, exists := r.players[id]; exists {
				p.IsConnected = true
				p.Client = client
				client.RoomCode = r.Code
				client.SessionID = id
				client.Role = transport.RolePlayer

				metrics.ReconnectsTotal.WithLabelValues("player").Inc()
				r.send(client, protocol.JoinedOut{
					Type:        protocol.TypeJoined,
					SessionID:   id,
					Score:       p.Score,
					PlayerName:  p.Name,
					IsReconnect: true,
				})
				if r.hostClient != nil {
					r.send(r.hostClient, protocol.PlayerReconnectedOut{
						Type:        protocol.TypePlayerReconnected,
						SessionID:   id,
						Name:        p.Name,
						Score:       p.Score,
						PlayerCount: r.playerCountLocked(),
					})
				}
				return
			}
		}
	}

	if len(r.players) >= MaxPlayersPerRoom {
		r.send(client, protocol.ErrorOut{Type: protocol.TypeError, Message: protocol.MsgRoomFull})
		return
	}

	id := r.minter.NewSessionID()
	name := sanitize.Name(rawName)
	r.players[id] = &Player{
		SessionID:   id,
		Name:        name,
		Score:       0,
		Client:      client,
		IsConnected: true,
	}
	client.RoomCode = r.Code
	client.SessionID = id
	client.Role = transport.RolePlayer
	r.updatePlayerGaugeLocked()

	r.send(client, protocol.JoinedOut{
		Type:        protocol.TypeJoined,
		SessionID:   id,
		Score:       0,
		PlayerName:  name,
		IsReconnect: false,
	})
	if r.hostClient != nil {
		r.send(r.hostClient, protocol.PlayerJoinedOut{
			Type:        protocol.TypePlayerJoined,
			SessionID:   id,
			Name:        name,
			PlayerCount: r.playerCountLocked(),
		})
	}
}

// SubmitAnswer forwards a player's answer to the host with a
// server-computed elapsed time. A non-array answerData, or one exceeding
// maxAnswerLen, is silently dropped, matching the wire protocol's
// validation rule.
func (r *Room) SubmitAnswer(client *transport.Client, rawAnswerData any) {
	answerData, ok := coerceAnswerData(rawAnswerData)
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.players[client.SessionID]
	if !ok || client.Role != transport.RolePlayer {
		r.send(client, protocol.ErrorOut{Type: protocol.TypeError, Message: protocol.MsgPlayerNotFound})
		return
	}

	now := time.Now()
	var elapsed *int64
	if r.questionStartTime != nil {
		ms := now.Sub(*r.questionStartTime).Milliseconds()
		elapsed = &ms
	}

	if r.hostClient == nil {
		return
	}
	r.send(r.hostClient, protocol.PlayerAnsweredOut{
		Type:       protocol.TypePlayerAnswered,
		SessionID:  p.SessionID,
		Name:       p.Name,
		AnswerData: answerData,
		AnswerTime: now.UnixMilli(),
		ElapsedMs:  elapsed,
	})
}

// StartQuestion is host-only: a non-host channel's call is silently
// ignored with no error frame and no state change, per the protocol's
// authorization rule. Overlength fields drop the whole message; an
// invalid or missing duration is defaulted rather than rejected.
func (r *Room) StartQuestion(client *transport.Client, in protocol.StartQuestionIn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(client) {
		return
	}

	if len(in.Question) > maxQuestionLen || len(in.Options) > maxOptionsLen {
		return
	}
	for _, opt := range in.Options {
		if len(opt) > maxOptionTextLen {
			return
		}
	}

	duration := coerceDuration(in.Duration)

	now := time.Now()
	r.questionStartTime = &now
	r.currentQuestionIndex = in.Index

	r.broadcastToPlayersLocked(protocol.QuestionOut{
		Type:      protocol.TypeQuestion,
		Question:  in.Question,
		Options:   in.Options,
		Index:     in.Index,
		Total:     in.Total,
		StartTime: now.UnixMilli(),
		Duration:  duration,
	})
}

// coerceDuration accepts whatever the wire decoded into Duration (absent,
// a JSON number, or a malformed value) and defaults out-of-range or
// non-numeric values to defaultDurationS.
func coerceDuration(raw any) float64 {
	v, ok := raw.(float64)
	if !ok || v <= minDurationS || v > maxDurationS {
		return defaultDurationS
	}
	return v
}

// coerceAnswerData accepts whatever the wire decoded into AnswerData and
// reports ok=false for anything that isn't a JSON array of numbers within
// maxAnswerLen, so the caller can drop it silently rather than reject the
// whole frame.
func coerceAnswerData(raw any) ([]int, bool) {
	items, ok := raw.([]any)
	if !ok || len(items) > maxAnswerLen {
		return nil, false
	}

	out := make([]int, len(items))
	for i, item := range items {
		n, ok := item.(float64)
		if !ok {
			return nil, false
		}
		out[i] = int(n)
	}
	return out, true
}

// SendResults is host-only. Each playerScores entry updates the matching
// player's score when it is a valid non-negative finite number; every
// connected player then receives a personalized result frame.
func (r *Room) SendResults(client *transport.Client, in protocol.SendResultsIn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(client) {
		return
	}

	for sessionID, score := range in.PlayerScores {
		if !sanitize.Score(score) {
			continue
		}
		if p, ok := r.players[sessionID]; ok {
			p.Score = score
		}
	}

	leaderboard := sanitizeLeaderboard(in.Leaderboard)

	for _, p := range r.players {
		if p.Client == nil {
			continue
		}
		r.send(p.Client, protocol.ResultOut{
			Type:          protocol.TypeResult,
			Correct:       in.Correct,
			IsFinal:       in.IsFinal,
			QuestionIndex: r.currentQuestionIndex,
			Leaderboard:   leaderboard,
			PlayerScore:   p.Score,
		})
	}
}

func sanitizeLeaderboard(in []protocol.LeaderboardEntry) []protocol.LeaderboardEntry {
	if in == nil {
		return nil
	}
	if len(in) > MaxPlayersPerRoom {
		in = in[:MaxPlayersPerRoom]
	}
	out := make([]protocol.LeaderboardEntry, len(in))
	for i, e := range in {
		score := e.Score
		if !sanitize.Score(score) {
			score = 0
		}
		out[i] = protocol.LeaderboardEntry{Name: sanitize.Name(e.Name), Score: score}
	}
	return out
}

// Terminate is host-only: it tears the room down immediately, broadcasting
// quiz_terminated and removing the room from the registry.
func (r *Room) Terminate(client *transport.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.isHostLocked(client) {
		return
	}
	r.removeLocked(reasonTerminated)
}

// isHostLocked reports whether client is this room's currently-attached
// host. Caller must hold mu.
func (r *Room) isHostLocked(client *transport.Client) bool {
	return client.Role == transport.RoleHost && client.SessionID == r.hostSessionID
}

// HandleDisconnect is called once a channel's connection closes. It either
// arms the host-disconnect grace timer (host) or marks a player offline
// and notifies the host (player); an unbound channel is a no-op.
func (r *Room) HandleDisconnect(client *transport.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client.Role == transport.RoleHost && r.hostClient == client {
		r.hostClient = nil
		r.armHostDisconnectTimerLocked()
		r.logger.Info("host disconnected, grace timer armed")
		return
	}

	if client.Role == transport.RolePlayer {
		p, ok := r.players[client.SessionID]
		if !ok || p.Client != client {
			return
		}
		p.IsConnected = false
		p.Client = nil

		if r.hostClient != nil {
			r.send(r.hostClient, protocol.PlayerLeftOut{
				Type:        protocol.TypePlayerLeft,
				SessionID:   p.SessionID,
				Name:        p.Name,
				PlayerCount: r.playerCountLocked(),
			})
		}
	}
}
