package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"gomoku/internal/domain/session"
	"gomoku/internal/engine"
	errs "gomoku/internal/errors"
	"gomoku/internal/pv"
	"gomoku/internal/state"
)

// Controller drives one solo session over the request-response engine
// boundary. Exchanges are strictly sequential: the mutex is held for the
// whole of an operation, including the turn resolution that follows it,
// so a new intent is never sent while a previous one is outstanding.
//
// On any failed exchange the pre-call snapshot is retained; a snapshot is
// only ever installed from a successful response.
type Controller struct {
	log    *zap.SugaredLogger
	engine engine.Engine
	state  *state.SessionState

	mu  sync.Mutex
	cfg session.Config
}

func NewController(log *zap.SugaredLogger, eng engine.Engine) *Controller {
	return &Controller{
		log:    log,
		engine: eng,
		state:  state.NewSessionState(),
	}
}

// Create asks the engine for a fresh session under cfg and installs the
// returned snapshot. If the first mover is automated the turn loop runs
// before control returns.
func (c *Controller) Create(ctx context.Context, cfg session.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.state.NextGeneration()
	snap, err := c.engine.CreateSession(ctx, cfg)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.state.Replace(gen, snap)

	return c.resolveTurns(ctx, gen)
}

// Play submits a human move. Out-of-turn intents are rejected locally,
// without a transport call.
func (c *Controller) Play(ctx context.Context, row, col int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}
	if snap.IsOver {
		return errs.ErrGameOver
	}
	if snap.PendingAction == session.PendingOpeningDecision {
		return errs.ErrAwaitingDecision
	}
	if snap.Players[snap.NextSeat].IsAI {
		return errs.ErrNotYourTurn
	}

	gen := c.state.Generation()
	next, err := c.engine.SubmitMove(ctx, snap.ID, row, col)
	if err != nil {
		return err
	}
	c.state.Replace(gen, next)

	return c.resolveTurns(ctx, gen)
}

// ResolveOpeningDecision is the re-entry point after the loop has stopped
// on a pending decision owned by a human.
func (c *Controller) ResolveOpeningDecision(ctx context.Context, swap bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}
	if snap.PendingAction != session.PendingOpeningDecision {
		return errs.ErrRejectedMove
	}

	gen := c.state.Generation()
	next, err := c.engine.ResolveOpeningDecision(ctx, snap.ID, swap)
	if err != nil {
		return err
	}
	c.state.Replace(gen, next)

	return c.resolveTurns(ctx, gen)
}

// StepBack reverses exactly one ply. The engine replays the stored move
// deltas; the bound is checked here so an out-of-range request never
// reaches the transport.
func (c *Controller) StepBack(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}
	if !c.state.CanStepBack() {
		return errs.ErrOutOfRange
	}

	gen := c.state.Generation()
	next, err := c.engine.StepBack(ctx, snap.ID)
	if err != nil {
		return err
	}
	c.state.Replace(gen, next)
	return nil
}

// StepForward reapplies the already-known move at the turn pointer.
func (c *Controller) StepForward(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}
	if !c.state.CanStepForward() {
		return errs.ErrOutOfRange
	}

	gen := c.state.Generation()
	next, err := c.engine.StepForward(ctx, snap.ID)
	if err != nil {
		return err
	}
	c.state.Replace(gen, next)
	return nil
}

// Reset requests a fresh session under the same configuration.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}

	gen := c.state.NextGeneration()
	next, err := c.engine.Reset(ctx, snap.ID)
	if err != nil {
		return err
	}
	c.state.Replace(gen, next)

	return c.resolveTurns(ctx, gen)
}

// Suggest fetches the evaluation tree for the current position and
// extracts both the best and the worst principal variation.
func (c *Controller) Suggest(ctx context.Context) (best, worst []pv.Step, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := c.state.Snapshot()
	if !ok {
		return nil, nil, errs.ErrSessionNotFound
	}

	tree, err := c.engine.Evaluate(ctx, snap.ID)
	if err != nil {
		return nil, nil, err
	}
	return pv.Best(tree), pv.Worst(tree), nil
}

// Snapshot returns the current authoritative snapshot.
func (c *Controller) Snapshot() (session.Session, bool) {
	return c.state.Snapshot()
}

// AwaitingDecision reports whether the loop stopped on an opening-rule
// decision, and which seat must make it.
func (c *Controller) AwaitingDecision() (seat int, ok bool) {
	snap, found := c.state.Snapshot()
	if !found || snap.PendingAction != session.PendingOpeningDecision {
		return 0, false
	}
	return snap.DecidingSeat, true
}
