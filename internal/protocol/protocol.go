// Package protocol defines the relay's wire format: JSON frames tagged by a
// "type" field, decoded into statically-typed Go structs at the one place
// the dispatcher trusts client input.
package protocol

// Type identifies the shape of a frame's remaining fields.
type Type string

// Inbound (client -> server) verbs.
const (
	TypeCreateRoom    Type = "create_room"
	TypeReconnectHost Type = "reconnect_host"
	TypeRestoreRoom   Type = "restore_room"
	TypeJoin          Type = "join"
	TypeSubmitAnswer  Type = "submit_answer"
	TypeStartQuestion Type = "start_question"
	TypeSendResults   Type = "send_results"
	TypeTerminate     Type = "terminate"
)

// Outbound (server -> client) verbs.
const (
	TypeRoomCreated         Type = "room_created"
	TypeHostReconnected     Type = "host_reconnected"
	TypeRoomNotFoundRestore Type = "room_not_found_try_restore"
	TypeJoined              Type = "joined"
	TypePlayerJoined        Type = "player_joined"
	TypePlayerReconnected   Type = "player_reconnected"
	TypePlayerLeft          Type = "player_left"
	TypePlayerAnswered      Type = "player_answered"
	TypeQuestion            Type = "question"
	TypeResult              Type = "result"
	TypeQuizTerminated      Type = "quiz_terminated"
	TypeError               Type = "error"
)

// Envelope is the minimal shape every inbound frame must satisfy; it is
// decoded first to learn Type, then the raw bytes are re-decoded into the
// concrete struct for that type.
type Envelope struct {
	Type Type `json:"type"`
}

// --- Inbound payloads ---

type ReconnectHostIn struct {
	Type      Type   `json:"type"`
	RoomID    string `json:"roomId"`
	SessionID string `json:"sessionId"`
}

type RestorePlayerIn struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type RestoreRoomIn struct {
	Type      Type              `json:"type"`
	RoomID    string            `json:"roomId"`
	SessionID string            `json:"sessionId"`
	Players   []RestorePlayerIn `json:"players"`
}

type JoinIn struct {
	Type       Type   `json:"type"`
	RoomCode   string `json:"roomCode"`
	SessionID  string `json:"sessionId,omitempty"`
	PlayerName string `json:"playerName"`
}

// SubmitAnswerIn decodes AnswerData as any rather than []int: the wire
// protocol requires a non-array answerData to be dropped silently rather
// than rejecting the whole frame as malformed, so the shape check happens
// after decode, not during it.
type SubmitAnswerIn struct {
	Type       Type `json:"type"`
	AnswerData any  `json:"answerData"`
}

// StartQuestionIn decodes Duration as any rather than float64: the wire
// protocol requires a missing or non-numeric duration to be defaulted
// rather than rejecting the whole frame, so the numeric coercion happens
// after decode, not during it.
type StartQuestionIn struct {
	Type     Type     `json:"type"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Index    int      `json:"index"`
	Total    int      `json:"total"`
	Duration any      `json:"duration"`
}

type SendResultsIn struct {
	Type         Type               `json:"type"`
	Correct      []int              `json:"correct"`
	IsFinal      bool               `json:"isFinal"`
	PlayerScores map[string]float64 `json:"playerScores"`
	Leaderboard  []LeaderboardEntry `json:"leaderboard,omitempty"`
}

type LeaderboardEntry struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// --- Outbound payloads ---

type RoomCreatedOut struct {
	Type      Type   `json:"type"`
	RoomID    string `json:"roomId"`
	SessionID string `json:"sessionId"`
}

type PlayerView struct {
	SessionID   string  `json:"sessionId"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	IsConnected bool    `json:"isConnected"`
}

type HostReconnectedOut struct {
	Type       Type         `json:"type"`
	RoomID     string       `json:"roomId"`
	Players    []PlayerView `json:"players"`
	IsRestored bool         `json:"isRestored,omitempty"`
}

type RoomNotFoundTryRestoreOut struct {
	Type      Type   `json:"type"`
	RoomID    string `json:"roomId"`
	SessionID string `json:"sessionId"`
}

type JoinedOut struct {
	Type        Type    `json:"type"`
	SessionID   string  `json:"sessionId"`
	Score       float64 `json:"score"`
	PlayerName  string  `json:"playerName"`
	IsReconnect bool    `json:"isReconnect"`
}

type PlayerJoinedOut struct {
	Type        Type   `json:"type"`
	SessionID   string `json:"sessionId"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerReconnectedOut struct {
	Type        Type    `json:"type"`
	SessionID   string  `json:"sessionId"`
	Name        string  `json:"name"`
	Score       float64 `json:"score"`
	PlayerCount int     `json:"playerCount"`
}

type PlayerLeftOut struct {
	Type        Type   `json:"type"`
	SessionID   string `json:"sessionId"`
	Name        string `json:"name"`
	PlayerCount int    `json:"playerCount"`
}

type PlayerAnsweredOut struct {
	Type       Type   `json:"type"`
	SessionID  string `json:"sessionId"`
	Name       string `json:"name"`
	AnswerData []int  `json:"answerData"`
	AnswerTime int64  `json:"answerTime"`
	ElapsedMs  *int64 `json:"elapsedMs"`
}

type QuestionOut struct {
	Type      Type     `json:"type"`
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	Index     int      `json:"index"`
	Total     int      `json:"total"`
	StartTime int64    `json:"startTime"`
	Duration  float64  `json:"duration"`
}

type ResultOut struct {
	Type          Type               `json:"type"`
	Correct       []int              `json:"correct"`
	IsFinal       bool               `json:"isFinal"`
	QuestionIndex int                `json:"questionIndex"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard,omitempty"`
	PlayerScore   float64            `json:"playerScore"`
}

type QuizTerminatedOut struct {
	Type Type `json:"type"`
}

type ErrorOut struct {
	Type    Type   `json:"type"`
	Message string `json:"message"`
}
