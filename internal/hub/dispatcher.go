package hub

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/quizrelay/relay/internal/ids"
	"github.com/quizrelay/relay/internal/logging"
	"github.com/quizrelay/relay/internal/metrics"
	"github.com/quizrelay/relay/internal/protocol"
	"github.com/quizrelay/relay/internal/room"
	"github.com/quizrelay/relay/internal/sanitize"
	"github.com/quizrelay/relay/internal/transport"
)

// dispatch is the message dispatcher (component E): decode the envelope,
// reject malformed frames up front, and route by type to a handler. Unknown
// types are logged and dropped; this is the single choke point where
// untrusted JSON becomes a typed Go value.
func (h *Hub) dispatch(client *transport.Client, raw []byte) {
	start := time.Now()

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		metrics.WebsocketEvents.WithLabelValues("unknown", "malformed").Inc()
		h.sendError(client, protocol.MsgMalformedFrame)
		return
	}

	switch env.Type {
	case protocol.TypeCreateRoom:
		h.handleCreateRoom(client)
	case protocol.TypeReconnectHost:
		h.handleReconnectHost(client, raw)
	case protocol.TypeRestoreRoom:
		h.handleRestoreRoom(client, raw)
	case protocol.TypeJoin:
		h.handleJoin(client, raw)
	case protocol.TypeSubmitAnswer:
		h.handleSubmitAnswer(client, raw)
	case protocol.TypeStartQuestion:
		h.handleStartQuestion(client, raw)
	case protocol.TypeSendResults:
		h.handleSendResults(client, raw)
	case protocol.TypeTerminate:
		h.handleTerminate(client)
	default:
		logging.Warn(context.Background(), "unknown frame type", zap.String("type", string(env.Type)))
		metrics.WebsocketEvents.WithLabelValues(string(env.Type), "unknown_type").Inc()
		return
	}

	metrics.WebsocketEvents.WithLabelValues(string(env.Type), "ok").Inc()
	metrics.MessageProcessingDuration.WithLabelValues(string(env.Type)).Observe(time.Since(start).Seconds())
}

func (h *Hub) send(client *transport.Client, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		logging.Error(context.Background(), "marshal outbound frame", zap.Error(err))
		return
	}
	client.Send(raw)
}

func (h *Hub) sendError(client *transport.Client, msg string) {
	h.send(client, protocol.ErrorOut{Type: protocol.TypeError, Message: msg})
}

func (h *Hub) handleCreateRoom(client *transport.Client) {
	if client.HostedRoom {
		h.sendError(client, protocol.MsgAlreadyHosting)
		return
	}

	hostSessionID := h.minter.NewSessionID()
	for {
		code, err := ids.NewRoomCode(h.registry.Exists)
		if err != nil {
			logging.Error(context.Background(), "room code space exhausted", zap.Error(err))
			h.sendError(client, protocol.MsgRoomFull)
			return
		}

		r := room.New(code, hostSessionID, h.minter, h.onRemove)
		if err := h.registry.Insert(code, r); err != nil {
			// Another room took this code between Exists() and Insert():
			// retry with a freshly minted code.
			continue
		}
		r.BindNewHost(client)
		return
	}
}

func (h *Hub) handleReconnectHost(client *transport.Client, raw []byte) {
	var in protocol.ReconnectHostIn
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(client, protocol.MsgMalformedFrame)
		return
	}

	r, ok := h.registry.Get(in.RoomID)
	if !ok {
		if in.SessionID != "" {
			h.send(client, protocol.RoomNotFoundTryRestoreOut{
				Type:      protocol.TypeRoomNotFoundRestore,
				RoomID:    in.RoomID,
				SessionID: in.SessionID,
			})
			return
		}
		h.sendError(client, protocol.MsgRoomNotFound)
		return
	}
	r.ReconnectHost(client, in.SessionID)
}

func (h *Hub) handleRestoreRoom(client *transport.Client, raw []byte) {
	var in protocol.RestoreRoomIn
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(client, protocol.MsgMalformedFrame)
		return
	}

	if !h.restoreLimiter.Allow(context.Background(), client.ID()) {
		h.sendError(client, protocol.MsgRestoreLimited)
		return
	}

	if existing, ok := h.registry.Get(in.RoomID); ok {
		if existing.HostSessionID() == in.SessionID {
			existing.ReconnectHost(client, in.SessionID)
			return
		}
		// Different host owns this code: mint a fresh one and proceed as a
		// brand-new restored room; the client adopts the new code.
		h.createRestoredRoom(client, "", in.SessionID, in.Players)
		return
	}

	h.createRestoredRoom(client, in.RoomID, in.SessionID, in.Players)
}

// createRestoredRoom creates a room.Restored under preferredCode if it is
// a well-formed, currently-free code, otherwise mints a fresh one.
func (h *Hub) createRestoredRoom(client *transport.Client, preferredCode, hostSessionID string, players []protocol.RestorePlayerIn) {
	code := preferredCode
	if sanitized, ok := sanitize.RoomCode(preferredCode); !ok || h.registry.Exists(sanitized) {
		fresh, err := ids.NewRoomCode(h.registry.Exists)
		if err != nil {
			h.sendError(client, protocol.MsgRoomFull)
			return
		}
		code = fresh
	} else {
		code = sanitized
	}

	for {
		r := room.Restored(code, hostSessionID, h.minter, players, h.onRemove)
		if err := h.registry.Insert(code, r); err == nil {
			r.AttachRestoredHost(client)
			return
		}
		// Another room took this code first: retry with a freshly minted one.
		fresh, err := ids.NewRoomCode(h.registry.Exists)
		if err != nil {
			h.sendError(client, protocol.MsgRoomFull)
			return
		}
		code = fresh
	}
}

func (h *Hub) handleJoin(client *transport.Client, raw []byte) {
	var in protocol.JoinIn
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(client, protocol.MsgMalformedFrame)
		return
	}

	code, ok := sanitize.RoomCode(in.RoomCode)
	if !ok {
		h.sendError(client, protocol.MsgRoomNotFound)
		return
	}
	r, ok := h.registry.Get(code)
	if !ok {
		h.sendError(client, protocol.MsgRoomNotFound)
		return
	}
	r.Join(client, in.SessionID, in.PlayerName)
}

func (h *Hub) handleSubmitAnswer(client *transport.Client, raw []byte) {
	var in protocol.SubmitAnswerIn
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(client, protocol.MsgMalformedFrame)
		return
	}

	r, ok := h.roomFor(client)
	if !ok {
		h.sendError(client, protocol.MsgRoomNotActive)
		return
	}
	r.SubmitAnswer(client, in.AnswerData)
}

func (h *Hub) handleStartQuestion(client *transport.Client, raw []byte) {
	var in protocol.StartQuestionIn
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(client, protocol.MsgMalformedFrame)
		return
	}
	r, ok := h.roomFor(client)
	if !ok {
		return
	}
	r.StartQuestion(client, in)
}

func (h *Hub) handleSendResults(client *transport.Client, raw []byte) {
	var in protocol.SendResultsIn
	if err := json.Unmarshal(raw, &in); err != nil {
		h.sendError(client, protocol.MsgMalformedFrame)
		return
	}
	r, ok := h.roomFor(client)
	if !ok {
		return
	}
	r.SendResults(client, in)
}

func (h *Hub) handleTerminate(client *transport.Client) {
	r, ok := h.roomFor(client)
	if !ok {
		return
	}
	r.Terminate(client)
}
