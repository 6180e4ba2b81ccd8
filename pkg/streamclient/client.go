// Package streamclient is the participant side of a shared room. State
// changes arrive as pushed snapshots, never as responses to the client's
// own sends; the last snapshot received always wins. History navigation
// is deliberately unsupported here: once play is shared, undo/redo would
// let participants diverge.
package streamclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	domroom "gomoku/internal/domain/room"
	"gomoku/internal/domain/session"
	errs "gomoku/internal/errors"
	"gomoku/internal/state"
)

// Controller drives one client connection to a room.
type Controller struct {
	log    *zap.SugaredLogger
	conn   *websocket.Conn
	roomID string
	token  string

	state *state.SessionState

	mu           sync.Mutex
	role         int
	availability [3]bool
	ready        bool

	snapshots chan session.Session
	errors    chan string
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the room endpoint and starts the receive loop. The
// token is the client's identity across reconnects and must be supplied
// explicitly; it is never read from ambient state.
func Dial(ctx context.Context, log *zap.SugaredLogger, wsURL, roomID, token string) (*Controller, error) {
	url := fmt.Sprintf("%s?room_id=%s&token=%s", wsURL, roomID, token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}

	c := &Controller{
		log:       log,
		conn:      conn,
		roomID:    roomID,
		token:     token,
		state:     state.NewSessionState(),
		snapshots: make(chan session.Session, 8),
		errors:    make(chan string, 8),
		done:      make(chan struct{}),
	}
	go c.receive()
	return c, nil
}

// RequestSeat asks for a seat. The grant (or refusal) arrives as a
// pushed identity or error message, like every other effect.
func (c *Controller) RequestSeat(role int) error {
	return c.sendMsg(domroom.ClientMessage{Type: domroom.MsgJoin, Role: role})
}

// Play is fire-and-forget: its effect is observed only through the next
// pushed snapshot.
func (c *Controller) Play(row, col int) error {
	return c.sendMsg(domroom.ClientMessage{Type: domroom.MsgMove, Row: row, Col: col})
}

func (c *Controller) ResolveOpeningDecision(swap bool) error {
	return c.sendMsg(domroom.ClientMessage{Type: domroom.MsgSwap, Swap: swap})
}

func (c *Controller) Reset() error {
	return c.sendMsg(domroom.ClientMessage{Type: domroom.MsgReset})
}

// Snapshots delivers every pushed snapshot in arrival order. Snapshot()
// always reflects the latest one even if the channel reader lags.
func (c *Controller) Snapshots() <-chan session.Session {
	return c.snapshots
}

// Errors delivers transient rejection messages from the room. They never
// change the displayed board.
func (c *Controller) Errors() <-chan string {
	return c.errors
}

func (c *Controller) Snapshot() (session.Session, bool) {
	return c.state.Snapshot()
}

func (c *Controller) Role() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

func (c *Controller) Availability() [3]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availability
}

func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// DecisionAwaited reports whether the pending opening decision belongs
// to this participant's seat.
func (c *Controller) DecisionAwaited() bool {
	snap, ok := c.state.Snapshot()
	if !ok || snap.PendingAction != session.PendingOpeningDecision {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	seat, seated := domroom.SessionSeat(c.role)
	return seated && snap.DecidingSeat == seat
}

// MyTurn is the local gate the UI uses before enabling input. The server
// re-checks every move anyway.
func (c *Controller) MyTurn() bool {
	snap, ok := c.state.Snapshot()
	if !ok || snap.IsOver || snap.PendingAction != session.PendingNone {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	seat, seated := domroom.SessionSeat(c.role)
	return seated && snap.NextSeat == seat
}

func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
	return nil
}

func (c *Controller) sendMsg(msg domroom.ClientMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	return nil
}

func (c *Controller) receive() {
	defer c.Close()
	for {
		var msg domroom.ServerMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.log.Errorf("room connection lost: %v", err)
			}
			return
		}

		// A push tagged with another room is a leftover from a previous
		// connection and is discarded, never applied.
		if msg.RoomID != c.roomID {
			continue
		}

		switch msg.Type {
		case domroom.MsgIdentity:
			c.mu.Lock()
			c.role = msg.Role
			if msg.Availability != nil {
				c.availability = *msg.Availability
			}
			c.ready = msg.Ready
			c.mu.Unlock()

		case domroom.MsgAvailability:
			c.mu.Lock()
			if msg.Availability != nil {
				c.availability = *msg.Availability
			}
			c.ready = msg.Ready
			c.mu.Unlock()

		case domroom.MsgUpdate:
			if msg.State == nil {
				continue
			}
			c.state.Replace(c.state.Generation(), *msg.State)
			select {
			case c.snapshots <- *msg.State:
			default:
				// Reader lagging; Snapshot() still has the latest.
			}

		case domroom.MsgError:
			select {
			case c.errors <- msg.Message:
			default:
			}
		}
	}
}
