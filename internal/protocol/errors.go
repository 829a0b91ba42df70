package protocol

// User-surfaced error messages for the relay's recoverable error kinds.
// All are delivered as ErrorOut on the offending channel; none mutate room
// state. Only RoomNotFound has a fixed required string, the rest are free
// text as long as they're in the same voice.
const (
	MsgRoomNotFound     = "Raum nicht gefunden."
	MsgInvalidSession   = "Ungültige Sitzung."
	MsgRoomFull         = "Raum ist voll."
	MsgRoomNotActive    = "Raum ist nicht aktiv."
	MsgPlayerNotFound   = "Spieler nicht gefunden."
	MsgRestoreLimited   = "Bitte warten Sie vor dem nächsten Wiederherstellungsversuch."
	MsgMalformedFrame   = "Ungültige Nachricht."
	MsgRateLimited      = "Zu viele Nachrichten, bitte langsamer."
	MsgAlreadyHosting   = "Dieser Kanal hostet bereits einen Raum."
)
