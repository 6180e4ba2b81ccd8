package room

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gomoku/internal/bootstrap"
	domroom "gomoku/internal/domain/room"
	"gomoku/internal/domain/session"
	errs "gomoku/internal/errors"
	repo "gomoku/internal/repository"
	"gomoku/pkg/streamclient"
)

// fakeEngine is a two-seat engine good enough for room tests:
// alternation, an optional pending decision, no win detection.
type fakeEngine struct {
	mu         sync.Mutex
	games      map[string]*session.Session
	nextID     int
	swapAtMove int
	winAtMove  int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{games: make(map[string]*session.Session)}
}

func (f *fakeEngine) CreateSession(_ context.Context, cfg session.Config) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	snap := session.Session{
		ID:         fmt.Sprintf("game-%d", f.nextID),
		Board:      session.EmptyBoard(cfg.BoardSize),
		WinnerSeat: session.SeatNone,
	}
	snap.Players[0] = session.Player{Color: session.CellBlack}
	snap.Players[1] = session.Player{Color: session.CellWhite}
	f.games[snap.ID] = &snap
	return snap.Clone(), nil
}

func (f *fakeEngine) SubmitMove(_ context.Context, id string, row, col int) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	if snap.Board[row][col] != session.CellEmpty {
		return session.Session{}, fmt.Errorf("%w: illegal cell", errs.ErrRejectedMove)
	}
	mover := snap.NextSeat
	snap.Board[row][col] = snap.Players[mover].Color
	snap.History = append(snap.History[:snap.TurnPointer], session.Move{Row: row, Col: col})
	snap.TurnPointer++
	snap.NextSeat = 1 - mover
	if f.winAtMove > 0 && snap.TurnPointer == f.winAtMove {
		snap.IsOver = true
		snap.WinnerSeat = mover
	}
	if f.swapAtMove > 0 && snap.TurnPointer == f.swapAtMove {
		snap.PendingAction = session.PendingOpeningDecision
		snap.DecidingSeat = snap.NextSeat
	}
	return snap.Clone(), nil
}

func (f *fakeEngine) ResolveOpeningDecision(_ context.Context, id string, swap bool) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	if swap {
		snap.Players[0].Color, snap.Players[1].Color = snap.Players[1].Color, snap.Players[0].Color
	}
	snap.PendingAction = session.PendingNone
	return snap.Clone(), nil
}

func (f *fakeEngine) Reset(_ context.Context, id string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	fresh := session.Session{
		ID:         id,
		Board:      session.EmptyBoard(len(snap.Board)),
		WinnerSeat: session.SeatNone,
	}
	fresh.Players = snap.Players
	*snap = fresh
	return snap.Clone(), nil
}

func (f *fakeEngine) StepBack(context.Context, string) (session.Session, error) {
	return session.Session{}, errs.ErrOutOfRange
}

func (f *fakeEngine) StepForward(context.Context, string) (session.Session, error) {
	return session.Session{}, errs.ErrOutOfRange
}

func (f *fakeEngine) AutomatedMove(context.Context, string) (session.Session, error) {
	return session.Session{}, errs.ErrRejectedMove
}

func (f *fakeEngine) Evaluate(context.Context, string) (session.MoveEvaluation, error) {
	return session.MoveEvaluation{}, nil
}

// recordingStore keeps the redis-backed repository but archives to an
// in-memory map so finished games can be asserted on without mongo.
type recordingStore struct {
	*repo.RoomRepository

	mu       sync.Mutex
	archives int
	archived map[string]repo.ArchivedGame
}

func (s *recordingStore) ArchiveGame(_ context.Context, a repo.ArchivedGame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archives++
	s.archived[a.RoomID] = a
	return nil
}

func (s *recordingStore) GetArchivedGame(_ context.Context, roomID string) (repo.ArchivedGame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.archived[roomID]
	if !ok {
		return repo.ArchivedGame{}, errs.ErrGameNotFound
	}
	return a, nil
}

func (s *recordingStore) archiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archives
}

type testRoomServer struct {
	srv    *httptest.Server
	engine *fakeEngine
	store  *recordingStore
}

func newTestRoomServer(t *testing.T) *testRoomServer {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg := bootstrap.Config{MinBoardSize: 10, MaxBoardSize: 25, SeatTokenTTLH: 1}
	log := zap.NewNop().Sugar()
	store := &recordingStore{
		RoomRepository: repo.NewRoomRepository(cfg, log, redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil),
		archived:       make(map[string]repo.ArchivedGame),
	}
	eng := newFakeEngine()
	handler := NewRoomHandler(cfg, log, eng, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/room/new", handler.HandleNewRoom)
	mux.HandleFunc("/room/list", handler.HandleRooms)
	mux.HandleFunc("/room/connect", handler.HandleConnect)
	mux.HandleFunc("/room/archive", handler.HandleArchive)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &testRoomServer{srv: srv, engine: eng, store: store}
}

func (ts *testRoomServer) createRoom(t *testing.T, ruleStyle string) string {
	t.Helper()
	body, _ := json.Marshal(domroom.CreateRoomRequest{BoardSize: 15, RuleStyle: ruleStyle})
	resp, err := http.Post(ts.srv.URL+"/room/new", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Status int
		Body   domroom.CreateRoomResponse
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if envelope.Body.RoomID == "" {
		t.Fatal("empty room id")
	}
	return envelope.Body.RoomID
}

func (ts *testRoomServer) dial(t *testing.T, roomID, token string) *streamclient.Controller {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/room/connect"
	c, err := streamclient.Dial(context.Background(), zap.NewNop().Sugar(), wsURL, roomID, token)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitError(t *testing.T, c *streamclient.Controller, what string) string {
	t.Helper()
	select {
	case msg := <-c.Errors():
		return msg
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func TestSeatNegotiationAndBroadcast(t *testing.T) {
	ts := newTestRoomServer(t)
	roomID := ts.createRoom(t, session.RuleStandard)

	alice := ts.dial(t, roomID, "alice")
	waitFor(t, "alice snapshot", func() bool { _, ok := alice.Snapshot(); return ok })

	if err := alice.RequestSeat(domroom.RolePlayerOne); err != nil {
		t.Fatalf("RequestSeat: %v", err)
	}
	waitFor(t, "alice seated", func() bool { return alice.Role() == domroom.RolePlayerOne })

	bob := ts.dial(t, roomID, "bob")
	waitFor(t, "bob availability", func() bool { return !bob.Availability()[domroom.RolePlayerOne] })

	// Taken seat: refused, availability unchanged.
	if err := bob.RequestSeat(domroom.RolePlayerOne); err != nil {
		t.Fatalf("RequestSeat: %v", err)
	}
	waitError(t, bob, "seat refusal")
	if bob.Role() != domroom.RoleSpectator {
		t.Fatal("bob must stay a spectator after the refusal")
	}

	if err := bob.RequestSeat(domroom.RolePlayerTwo); err != nil {
		t.Fatalf("RequestSeat: %v", err)
	}
	waitFor(t, "bob seated", func() bool { return bob.Role() == domroom.RolePlayerTwo })

	// The flip is pushed to every member of the room.
	waitFor(t, "alice sees both seats taken", func() bool {
		a := alice.Availability()
		return !a[domroom.RolePlayerOne] && !a[domroom.RolePlayerTwo]
	})
	waitFor(t, "room ready", func() bool { return alice.Ready() && bob.Ready() })
}

func TestMovesArePushedToAllParticipants(t *testing.T) {
	ts := newTestRoomServer(t)
	roomID := ts.createRoom(t, session.RuleStandard)

	alice := ts.dial(t, roomID, "alice")
	bob := ts.dial(t, roomID, "bob")
	carol := ts.dial(t, roomID, "carol") // spectator

	alice.RequestSeat(domroom.RolePlayerOne)
	bob.RequestSeat(domroom.RolePlayerTwo)
	waitFor(t, "seats", func() bool {
		return alice.Role() == domroom.RolePlayerOne && bob.Role() == domroom.RolePlayerTwo
	})
	waitFor(t, "alice on turn", func() bool { return alice.MyTurn() })

	if err := alice.Play(7, 7); err != nil {
		t.Fatalf("Play: %v", err)
	}

	// The mover observes its own move only through the push, like
	// everyone else in the room.
	for name, c := range map[string]*streamclient.Controller{"alice": alice, "bob": bob, "carol": carol} {
		c := c
		waitFor(t, name+" push", func() bool {
			snap, ok := c.Snapshot()
			return ok && snap.TurnPointer == 1 && snap.Board[7][7] == session.CellBlack
		})
	}

	if alice.MyTurn() {
		t.Fatal("alice cannot be on turn after her own move")
	}
	waitFor(t, "bob on turn", func() bool { return bob.MyTurn() })

	// Out of turn and spectator intents are rejected server-side.
	alice.Play(0, 0)
	waitError(t, alice, "out-of-turn rejection")
	carol.Play(1, 1)
	waitError(t, carol, "spectator rejection")

	snap, _ := alice.Snapshot()
	if snap.TurnPointer != 1 {
		t.Fatal("rejected intents must not advance the shared state")
	}
}

func TestOpeningDecisionGatedToDecidingSeat(t *testing.T) {
	ts := newTestRoomServer(t)
	ts.engine.swapAtMove = 3
	roomID := ts.createRoom(t, session.RuleSwap)

	alice := ts.dial(t, roomID, "alice")
	bob := ts.dial(t, roomID, "bob")
	alice.RequestSeat(domroom.RolePlayerOne)
	bob.RequestSeat(domroom.RolePlayerTwo)
	waitFor(t, "seats", func() bool {
		return alice.Role() == domroom.RolePlayerOne && bob.Role() == domroom.RolePlayerTwo
	})
	waitFor(t, "alice on turn", func() bool { return alice.MyTurn() })

	alice.Play(0, 0)
	waitFor(t, "bob on turn", func() bool { return bob.MyTurn() })
	bob.Play(0, 1)
	waitFor(t, "alice on turn again", func() bool { return alice.MyTurn() })
	alice.Play(0, 2)

	waitFor(t, "pending decision", func() bool {
		snap, ok := bob.Snapshot()
		return ok && snap.PendingAction == session.PendingOpeningDecision
	})
	waitFor(t, "decision owned by bob", func() bool { return bob.DecisionAwaited() })
	if alice.DecisionAwaited() {
		t.Fatal("the decision prompt belongs to bob's seat only")
	}

	// Playing through the pending decision is rejected.
	bob.Play(5, 5)
	waitError(t, bob, "pending rejection")

	// And the wrong seat cannot decide.
	alice.ResolveOpeningDecision(true)
	waitError(t, alice, "wrong-seat decision rejection")

	bob.ResolveOpeningDecision(true)
	waitFor(t, "decision applied", func() bool {
		snap, ok := bob.Snapshot()
		return ok && snap.PendingAction == session.PendingNone &&
			snap.Players[0].Color == session.CellWhite
	})
}

func TestReconnectRecoversSeat(t *testing.T) {
	ts := newTestRoomServer(t)
	roomID := ts.createRoom(t, session.RuleStandard)

	alice := ts.dial(t, roomID, "alice")
	bob := ts.dial(t, roomID, "bob")
	alice.RequestSeat(domroom.RolePlayerOne)
	bob.RequestSeat(domroom.RolePlayerTwo)
	waitFor(t, "seats", func() bool {
		return alice.Role() == domroom.RolePlayerOne && bob.Role() == domroom.RolePlayerTwo
	})

	bob.Close()
	waitFor(t, "seat released", func() bool { return alice.Availability()[domroom.RolePlayerTwo] })

	// Same token before anyone takes the seat: identity recovers.
	bob2 := ts.dial(t, roomID, "bob")
	waitFor(t, "seat recovered", func() bool { return bob2.Role() == domroom.RolePlayerTwo })

	bob2.Close()
	waitFor(t, "seat released again", func() bool { return alice.Availability()[domroom.RolePlayerTwo] })

	// Seat taken over first: the reconnecting client is a spectator.
	mallory := ts.dial(t, roomID, "mallory")
	mallory.RequestSeat(domroom.RolePlayerTwo)
	waitFor(t, "mallory seated", func() bool { return mallory.Role() == domroom.RolePlayerTwo })

	bob3 := ts.dial(t, roomID, "bob")
	waitFor(t, "bob back as spectator", func() bool {
		_, ok := bob3.Snapshot()
		return ok
	})
	if bob3.Role() != domroom.RoleSpectator {
		t.Fatalf("bob must renegotiate, role %d", bob3.Role())
	}
}

func TestFinishedGameArchivedOnceAndServed(t *testing.T) {
	ts := newTestRoomServer(t)
	ts.engine.winAtMove = 1
	roomID := ts.createRoom(t, session.RuleStandard)

	alice := ts.dial(t, roomID, "alice")
	bob := ts.dial(t, roomID, "bob")
	alice.RequestSeat(domroom.RolePlayerOne)
	bob.RequestSeat(domroom.RolePlayerTwo)
	waitFor(t, "alice on turn", func() bool { return alice.MyTurn() })

	alice.Play(7, 7)
	for name, c := range map[string]*streamclient.Controller{"alice": alice, "bob": bob} {
		c := c
		waitFor(t, name+" sees the finish", func() bool {
			snap, ok := c.Snapshot()
			return ok && snap.IsOver && snap.WinnerSeat == 0
		})
	}
	waitFor(t, "archive write", func() bool { return ts.store.archiveCount() == 1 })

	// Play in a finished game is refused and must not archive again.
	alice.Play(8, 8)
	waitError(t, alice, "game-over rejection")
	if got := ts.store.archiveCount(); got != 1 {
		t.Fatalf("finished game archived %d times, want 1", got)
	}

	resp, err := http.Get(ts.srv.URL + "/room/archive?room_id=" + roomID)
	if err != nil {
		t.Fatalf("get archive: %v", err)
	}
	defer resp.Body.Close()
	var envelope struct {
		Status int
		Body   repo.ArchivedGame
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	if envelope.Body.RoomID != roomID || !envelope.Body.Final.IsOver {
		t.Fatalf("served archive %+v, want the finished game of room %s", envelope.Body, roomID)
	}

	// Reset revives the room; the next finish is a new game and archives
	// again.
	alice.Reset()
	waitFor(t, "reset push", func() bool {
		snap, ok := alice.Snapshot()
		return ok && !snap.IsOver && snap.TurnPointer == 0
	})
	waitFor(t, "alice on turn again", func() bool { return alice.MyTurn() })
	alice.Play(3, 3)
	waitFor(t, "second archive", func() bool { return ts.store.archiveCount() == 2 })
}

func TestStandUpFreesSeat(t *testing.T) {
	ts := newTestRoomServer(t)
	roomID := ts.createRoom(t, session.RuleStandard)

	alice := ts.dial(t, roomID, "alice")
	bob := ts.dial(t, roomID, "bob")
	alice.RequestSeat(domroom.RolePlayerOne)
	waitFor(t, "alice seated", func() bool { return alice.Role() == domroom.RolePlayerOne })

	alice.RequestSeat(domroom.RoleSpectator)
	waitFor(t, "alice stood up", func() bool { return alice.Role() == domroom.RoleSpectator })
	waitFor(t, "seat freed for bob", func() bool { return bob.Availability()[domroom.RolePlayerOne] })

	bob.RequestSeat(domroom.RolePlayerOne)
	waitFor(t, "bob took the seat", func() bool { return bob.Role() == domroom.RolePlayerOne })

	// The stood-up token must not recover the seat on reconnect.
	alice.Close()
	alice2 := ts.dial(t, roomID, "alice")
	waitFor(t, "alice back", func() bool { _, ok := alice2.Snapshot(); return ok })
	if alice2.Role() != domroom.RoleSpectator {
		t.Fatalf("stood-up token must reconnect as spectator, role %d", alice2.Role())
	}
}

func TestRoomCodeNeedsRegistryConfirmation(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close() // registry unreachable from here on

	cfg := bootstrap.Config{MinBoardSize: 10, MaxBoardSize: 25, SeatTokenTTLH: 1}
	log := zap.NewNop().Sugar()
	h := NewRoomHandler(cfg, log, newFakeEngine(), repo.NewRoomRepository(cfg, log, client, nil))

	if _, err := h.generateRoomID(context.Background()); err == nil {
		t.Fatal("an unreachable registry must not mint a room code")
	}
}

func TestRoomListing(t *testing.T) {
	ts := newTestRoomServer(t)
	first := ts.createRoom(t, session.RuleStandard)
	second := ts.createRoom(t, session.RuleSwap)

	resp, err := http.Get(ts.srv.URL + "/room/list")
	if err != nil {
		t.Fatalf("list rooms: %v", err)
	}
	defer resp.Body.Close()
	var envelope struct {
		Status int
		Body   []domroom.Room
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if len(envelope.Body) != 2 {
		t.Fatalf("listed %d rooms, want 2", len(envelope.Body))
	}
	seen := map[string]bool{}
	for _, rm := range envelope.Body {
		seen[rm.ID] = true
	}
	if !seen[first] || !seen[second] {
		t.Fatalf("listing missing a room: %v", seen)
	}
}

func TestResetClearsSharedState(t *testing.T) {
	ts := newTestRoomServer(t)
	roomID := ts.createRoom(t, session.RuleStandard)

	alice := ts.dial(t, roomID, "alice")
	bob := ts.dial(t, roomID, "bob")
	alice.RequestSeat(domroom.RolePlayerOne)
	bob.RequestSeat(domroom.RolePlayerTwo)
	waitFor(t, "alice on turn", func() bool { return alice.MyTurn() })

	alice.Play(7, 7)
	waitFor(t, "move pushed", func() bool {
		snap, ok := bob.Snapshot()
		return ok && snap.TurnPointer == 1
	})

	alice.Reset()
	for name, c := range map[string]*streamclient.Controller{"alice": alice, "bob": bob} {
		c := c
		waitFor(t, name+" reset push", func() bool {
			snap, ok := c.Snapshot()
			return ok && snap.TurnPointer == 0 && snap.Board[7][7] == session.CellEmpty
		})
	}
}
