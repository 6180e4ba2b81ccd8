package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gomoku/internal/domain/session"
	errs "gomoku/internal/errors"
)

// fakeEngine implements just enough of the engine boundary for the
// controller tests: alternation, delta bookkeeping, redo-tail
// truncation, the swap rule's pending decision, and a scan-order bot.
type fakeEngine struct {
	mu       sync.Mutex
	games    map[string]*fakeGame
	nextID   int
	calls    []string
	failWith map[string]error // op name -> error to inject
	evalTree session.MoveEvaluation

	// move count at which the swap rule raises its pending decision;
	// zero means the rule never triggers.
	swapAtMove int

	// move count at which the mover completes a row and wins; zero means
	// the game never finishes.
	winAtMove int
}

type fakeGame struct {
	cfg  session.Config
	snap session.Session
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		games:    make(map[string]*fakeGame),
		failWith: make(map[string]error),
		evalTree: session.MoveEvaluation{Score: 1},
	}
}

func (f *fakeEngine) record(op string) error {
	f.calls = append(f.calls, op)
	if err := f.failWith[op]; err != nil {
		return err
	}
	return nil
}

func (f *fakeEngine) callCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *fakeEngine) CreateSession(_ context.Context, cfg session.Config) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create"); err != nil {
		return session.Session{}, err
	}
	if cfg.BoardSize < 10 || cfg.BoardSize > 25 {
		return session.Session{}, fmt.Errorf("%w: bad size", errs.ErrCreationFailed)
	}

	f.nextID++
	id := "game-" + strconv.Itoa(f.nextID)
	g := &fakeGame{cfg: cfg, snap: freshSnapshot(id, cfg)}
	f.games[id] = g
	return g.snap.Clone(), nil
}

func freshSnapshot(id string, cfg session.Config) session.Session {
	snap := session.Session{
		ID:         id,
		Board:      session.EmptyBoard(cfg.BoardSize),
		NextSeat:   cfg.FirstSeat,
		WinnerSeat: session.SeatNone,
	}
	snap.Players[session.SeatA] = session.Player{Color: session.CellBlack}
	snap.Players[session.SeatB] = session.Player{Color: session.CellWhite}
	if cfg.VsBot {
		snap.Players[1-cfg.FirstSeat].IsAI = true
	}
	return snap
}

func (f *fakeEngine) SubmitMove(_ context.Context, id string, row, col int) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("move"); err != nil {
		return session.Session{}, err
	}
	return f.applyMove(id, row, col)
}

func (f *fakeEngine) AutomatedMove(_ context.Context, id string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ai_turn"); err != nil {
		return session.Session{}, err
	}
	g, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	for r := range g.snap.Board {
		for c := range g.snap.Board[r] {
			if g.snap.Board[r][c] == session.CellEmpty {
				return f.applyMove(id, r, c)
			}
		}
	}
	return session.Session{}, fmt.Errorf("%w: board full", errs.ErrRejectedMove)
}

func (f *fakeEngine) applyMove(id string, row, col int) (session.Session, error) {
	g, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	snap := &g.snap
	if snap.IsOver {
		return session.Session{}, errs.ErrGameOver
	}
	if snap.PendingAction != session.PendingNone {
		return session.Session{}, errs.ErrAwaitingDecision
	}
	if row < 0 || row >= len(snap.Board) || col < 0 || col >= len(snap.Board) ||
		snap.Board[row][col] != session.CellEmpty {
		return session.Session{}, fmt.Errorf("%w: illegal cell", errs.ErrRejectedMove)
	}

	mover := snap.NextSeat
	result := session.MoveResult{
		CellChanges: []session.CellChange{{
			Row: row, Col: col,
			OldValue: session.CellEmpty,
			NewValue: snap.Players[mover].Color,
		}},
	}
	result.ScoreChanges[mover] = 1

	// A new branch overwrites any previously reapplyable moves.
	snap.History = append(snap.History[:snap.TurnPointer], session.Move{Row: row, Col: col, Result: result})
	scores := [2]float64{snap.Players[0].Score, snap.Players[1].Score}
	result.Apply(snap.Board, &scores)
	snap.Players[0].Score, snap.Players[1].Score = scores[0], scores[1]
	snap.TurnPointer++
	snap.NextSeat = 1 - mover

	if f.winAtMove > 0 && snap.TurnPointer == f.winAtMove {
		snap.IsOver = true
		snap.WinnerSeat = mover
	}

	if g.cfg.RuleStyle == session.RuleSwap && f.swapAtMove > 0 && snap.TurnPointer == f.swapAtMove {
		snap.PendingAction = session.PendingOpeningDecision
		snap.DecidingSeat = snap.NextSeat
	}

	return snap.Clone(), nil
}

func (f *fakeEngine) StepBack(_ context.Context, id string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reverse"); err != nil {
		return session.Session{}, err
	}
	g, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	snap := &g.snap
	if snap.TurnPointer == 0 {
		return session.Session{}, errs.ErrOutOfRange
	}

	mv := snap.History[snap.TurnPointer-1]
	scores := [2]float64{snap.Players[0].Score, snap.Players[1].Score}
	mv.Result.Revert(snap.Board, &scores)
	snap.Players[0].Score, snap.Players[1].Score = scores[0], scores[1]
	snap.TurnPointer--
	snap.NextSeat = 1 - snap.NextSeat
	return snap.Clone(), nil
}

func (f *fakeEngine) StepForward(_ context.Context, id string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reapply"); err != nil {
		return session.Session{}, err
	}
	g, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	snap := &g.snap
	if snap.TurnPointer >= len(snap.History) {
		return session.Session{}, errs.ErrOutOfRange
	}

	mv := snap.History[snap.TurnPointer]
	scores := [2]float64{snap.Players[0].Score, snap.Players[1].Score}
	mv.Result.Apply(snap.Board, &scores)
	snap.Players[0].Score, snap.Players[1].Score = scores[0], scores[1]
	snap.TurnPointer++
	snap.NextSeat = 1 - snap.NextSeat
	return snap.Clone(), nil
}

func (f *fakeEngine) ResolveOpeningDecision(_ context.Context, id string, swap bool) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("swap"); err != nil {
		return session.Session{}, err
	}
	g, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	snap := &g.snap
	if snap.PendingAction != session.PendingOpeningDecision {
		return session.Session{}, errs.ErrRejectedMove
	}
	if swap {
		snap.Players[0].Color, snap.Players[1].Color = snap.Players[1].Color, snap.Players[0].Color
	}
	snap.PendingAction = session.PendingNone
	return snap.Clone(), nil
}

func (f *fakeEngine) Evaluate(_ context.Context, id string) (session.MoveEvaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("evaluate"); err != nil {
		return session.MoveEvaluation{}, err
	}
	if _, ok := f.games[id]; !ok {
		return session.MoveEvaluation{}, errs.ErrSessionNotFound
	}
	return f.evalTree, nil
}

func (f *fakeEngine) Reset(_ context.Context, id string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("reset"); err != nil {
		return session.Session{}, err
	}
	g, ok := f.games[id]
	if !ok {
		return session.Session{}, errs.ErrSessionNotFound
	}
	g.snap = freshSnapshot(id, g.cfg)
	return g.snap.Clone(), nil
}
