package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gomoku/internal/bootstrap"
	"gomoku/internal/domain/session"
	errs "gomoku/internal/errors"
)

// Client talks JSON over HTTP to the engine service. One request per
// exchange; the response either carries a full snapshot or an engine-side
// rejection message. Connectivity failures are wrapped as ErrTransport so
// callers can tell them apart from rejections.
type Client struct {
	cfg    bootstrap.Config
	log    *zap.SugaredLogger
	client *http.Client
}

func NewClient(cfg bootstrap.Config, log *zap.SugaredLogger) *Client {
	return &Client{
		cfg: cfg,
		log: log,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type envelope struct {
	Success    bool                    `json:"success"`
	Message    string                  `json:"message"`
	State      *session.Session        `json:"state,omitempty"`
	Evaluation *session.MoveEvaluation `json:"evaluation,omitempty"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type moveRequest struct {
	SessionID string `json:"session_id"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
}

type swapRequest struct {
	SessionID string `json:"session_id"`
	Swap      bool   `json:"swap"`
}

func (c *Client) CreateSession(ctx context.Context, cfg session.Config) (session.Session, error) {
	return c.exchange(ctx, "/create_room", cfg, errs.ErrCreationFailed)
}

func (c *Client) SubmitMove(ctx context.Context, sessionID string, row, col int) (session.Session, error) {
	return c.exchange(ctx, "/make_move", moveRequest{SessionID: sessionID, Row: row, Col: col}, errs.ErrRejectedMove)
}

func (c *Client) StepBack(ctx context.Context, sessionID string) (session.Session, error) {
	return c.exchange(ctx, "/reverse_move", sessionRequest{SessionID: sessionID}, errs.ErrOutOfRange)
}

func (c *Client) StepForward(ctx context.Context, sessionID string) (session.Session, error) {
	return c.exchange(ctx, "/reapply_move", sessionRequest{SessionID: sessionID}, errs.ErrOutOfRange)
}

func (c *Client) ResolveOpeningDecision(ctx context.Context, sessionID string, swap bool) (session.Session, error) {
	return c.exchange(ctx, "/swap", swapRequest{SessionID: sessionID, Swap: swap}, errs.ErrRejectedMove)
}

func (c *Client) AutomatedMove(ctx context.Context, sessionID string) (session.Session, error) {
	return c.exchange(ctx, "/ai_turn", sessionRequest{SessionID: sessionID}, errs.ErrRejectedMove)
}

func (c *Client) Reset(ctx context.Context, sessionID string) (session.Session, error) {
	return c.exchange(ctx, "/reset_game", sessionRequest{SessionID: sessionID}, errs.ErrInternal)
}

func (c *Client) Evaluate(ctx context.Context, sessionID string) (session.MoveEvaluation, error) {
	env, err := c.post(ctx, "/get_suggestion", sessionRequest{SessionID: sessionID})
	if err != nil {
		return session.MoveEvaluation{}, err
	}
	if !env.Success || env.Evaluation == nil {
		return session.MoveEvaluation{}, fmt.Errorf("%w: %s", errs.ErrInternal, env.Message)
	}
	return *env.Evaluation, nil
}

// exchange posts the request and expects a full snapshot back. rejection
// is the sentinel an engine-side refusal maps to for this operation.
func (c *Client) exchange(ctx context.Context, path string, body any, rejection error) (session.Session, error) {
	env, err := c.post(ctx, path, body)
	if err != nil {
		return session.Session{}, err
	}
	if !env.Success {
		return session.Session{}, fmt.Errorf("%w: %s", rejection, env.Message)
	}
	if env.State == nil {
		return session.Session{}, fmt.Errorf("%w: engine returned no state for %s", errs.ErrTransport, path)
	}
	return *env.State, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EngineURL+path, bytes.NewReader(payload))
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Errorf("engine %s: %v", path, err)
		return envelope{}, fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return envelope{}, fmt.Errorf("%w: decode %s: %v", errs.ErrTransport, path, err)
	}
	return env, nil
}
