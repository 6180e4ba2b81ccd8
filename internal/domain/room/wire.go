package room

import "gomoku/internal/domain/session"

// WebSocket message types, client to server.
const (
	MsgJoin  = "join"
	MsgMove  = "move"
	MsgSwap  = "swap"
	MsgReset = "reset"
)

// WebSocket message types, server to client.
const (
	MsgIdentity     = "identity"
	MsgAvailability = "availability"
	MsgUpdate       = "update"
	MsgError        = "error"
)

type ClientMessage struct {
	Type string `json:"type"`
	Role int    `json:"role,omitempty"`
	Row  int    `json:"row,omitempty"`
	Col  int    `json:"col,omitempty"`
	Swap bool   `json:"swap,omitempty"`
}

// ServerMessage always carries the room id so a client that reconnected
// elsewhere can discard pushes from a connection it abandoned.
type ServerMessage struct {
	Type         string           `json:"type"`
	RoomID       string           `json:"room_id"`
	Role         int              `json:"role,omitempty"`
	Availability *[3]bool         `json:"availability,omitempty"`
	Ready        bool             `json:"ready,omitempty"`
	State        *session.Session `json:"state,omitempty"`
	Message      string           `json:"message,omitempty"`
}
