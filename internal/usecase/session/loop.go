package session

import (
	"context"
	"fmt"

	"gomoku/internal/domain/session"
	errs "gomoku/internal/errors"
)

// resolveTurns re-enters after every successful exchange and keeps
// delegating until control rests with a human or the game ends:
//
//  1. game over -> stop;
//  2. pending opening decision -> stop if a human owns it, otherwise ask
//     the engine to evaluate, submit its recommended choice, loop;
//  3. automated seat to move -> request the engine's move, loop;
//  4. otherwise a human is to move -> stop.
//
// The first failed exchange aborts the loop and surfaces; an automated
// participant that cannot move is an engine fault, not a game-state one.
// The iteration cap only exists to bound a misbehaving engine that keeps
// answering without ever advancing the game.
func (c *Controller) resolveTurns(ctx context.Context, gen uint64) error {
	snap, ok := c.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}

	limit := len(snap.Board)*len(snap.Board) + 2
	for i := 0; i < limit; i++ {
		if snap.IsOver {
			return nil
		}

		if snap.PendingAction == session.PendingOpeningDecision {
			if !snap.Players[snap.DecidingSeat].IsAI {
				return nil
			}
			tree, err := c.engine.Evaluate(ctx, snap.ID)
			if err != nil {
				return err
			}
			// Negative score for the deciding side means the position is
			// worth taking over.
			next, err := c.engine.ResolveOpeningDecision(ctx, snap.ID, tree.Score < 0)
			if err != nil {
				return err
			}
			if !c.state.Replace(gen, next) {
				return nil
			}
			snap = next
			continue
		}

		if snap.Players[snap.NextSeat].IsAI {
			next, err := c.engine.AutomatedMove(ctx, snap.ID)
			if err != nil {
				return err
			}
			if !c.state.Replace(gen, next) {
				return nil
			}
			snap = next
			continue
		}

		return nil
	}

	return fmt.Errorf("%w: turn resolution did not settle", errs.ErrTransport)
}
