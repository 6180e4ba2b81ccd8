package room

import "time"

// Roles inside a room. Index 0 of the availability vector is the
// spectator slot and is always open; 1 and 2 are the two seats.
const (
	RoleSpectator = 0
	RolePlayerOne = 1
	RolePlayerTwo = 2
)

type Room struct {
	ID        string    `json:"room_id"`
	BoardSize int       `json:"board_size"`
	RuleStyle string    `json:"rule_style"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateRoomRequest struct {
	BoardSize int    `json:"board_size"`
	RuleStyle string `json:"rule_style"`
}

type CreateRoomResponse struct {
	RoomID string `json:"room_id"`
}

// SessionSeat maps a room role to the session seat it plays.
// Spectators have no seat.
func SessionSeat(role int) (int, bool) {
	if role == RolePlayerOne || role == RolePlayerTwo {
		return role - 1, true
	}
	return 0, false
}
