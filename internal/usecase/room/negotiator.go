// Package room arbitrates seat occupancy inside a shared room. Identity
// is carried by a client-supplied token, not by the transport connection,
// so a reconnecting client can recover its seat as long as nobody took it
// over in the meantime.
package room

import (
	"sync"

	"gomoku/internal/domain/room"
	errs "gomoku/internal/errors"
)

// Negotiator is the per-room seat state machine:
// Unidentified -> Spectator -> Seated.
type Negotiator struct {
	mu sync.Mutex
	// seats[1] and seats[2] hold the occupying token; index 0 is the
	// spectator slot and stays empty.
	seats [3]string
}

func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// Announce returns the role the token currently holds (spectator if none)
// and the live availability vector.
func (n *Negotiator) Announce(token string) (role int, availability [3]bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.roleOf(token), n.availability()
}

// RequestSeat grants the seat iff it is currently unseated (or already
// held by the same token). On failure availability is unchanged.
// Requesting the spectator role stands the token up from any seat it
// holds.
func (n *Negotiator) RequestSeat(token string, role int) ([3]bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if role != room.RolePlayerOne && role != room.RolePlayerTwo {
		if prev := n.roleOf(token); prev != room.RoleSpectator {
			n.seats[prev] = ""
		}
		return n.availability(), nil
	}
	if n.seats[role] != "" && n.seats[role] != token {
		return n.availability(), errs.ErrSeatTaken
	}

	// One token holds at most one seat.
	if prev := n.roleOf(token); prev != room.RoleSpectator && prev != role {
		n.seats[prev] = ""
	}
	n.seats[role] = token
	return n.availability(), nil
}

// Release frees whatever seat the token holds. Called on disconnect.
func (n *Negotiator) Release(token string) (role int, released bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	role = n.roleOf(token)
	if role == room.RoleSpectator {
		return role, false
	}
	n.seats[role] = ""
	return role, true
}

// Ready reports whether both seats are occupied.
func (n *Negotiator) Ready() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seats[room.RolePlayerOne] != "" && n.seats[room.RolePlayerTwo] != ""
}

func (n *Negotiator) RoleOf(token string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.roleOf(token)
}

func (n *Negotiator) Availability() [3]bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.availability()
}

func (n *Negotiator) roleOf(token string) int {
	for role := room.RolePlayerOne; role <= room.RolePlayerTwo; role++ {
		if n.seats[role] == token {
			return role
		}
	}
	return room.RoleSpectator
}

// The spectator slot is always open.
func (n *Negotiator) availability() [3]bool {
	return [3]bool{
		true,
		n.seats[room.RolePlayerOne] == "",
		n.seats[room.RolePlayerTwo] == "",
	}
}
