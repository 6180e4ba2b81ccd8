package engine

import (
	"context"

	"gomoku/internal/domain/session"
)

// Engine is the boundary with the remote game engine service. Rules,
// win detection and search all live behind it; this layer only exchanges
// snapshots with it.
type Engine interface {
	CreateSession(ctx context.Context, cfg session.Config) (session.Session, error)
	SubmitMove(ctx context.Context, sessionID string, row, col int) (session.Session, error)
	StepBack(ctx context.Context, sessionID string) (session.Session, error)
	StepForward(ctx context.Context, sessionID string) (session.Session, error)
	ResolveOpeningDecision(ctx context.Context, sessionID string, swap bool) (session.Session, error)
	AutomatedMove(ctx context.Context, sessionID string) (session.Session, error)
	Evaluate(ctx context.Context, sessionID string) (session.MoveEvaluation, error)
	Reset(ctx context.Context, sessionID string) (session.Session, error)
}
