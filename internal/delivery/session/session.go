package session

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"gomoku/internal/bootstrap"
	domsession "gomoku/internal/domain/session"
	"gomoku/internal/engine"
	errs "gomoku/internal/errors"
	"gomoku/internal/httpresponse"
	"gomoku/internal/pv"
	sessionuc "gomoku/internal/usecase/session"
	"gomoku/internal/utils"
)

// SessionHandler exposes solo play over plain request-response HTTP.
// Every call carries an explicit user id; one controller per user.
type SessionHandler struct {
	cfg    bootstrap.Config
	log    *zap.SugaredLogger
	engine engine.Engine

	mu          sync.RWMutex
	controllers map[string]*sessionuc.Controller
}

func NewSessionHandler(cfg bootstrap.Config, log *zap.SugaredLogger, eng engine.Engine) *SessionHandler {
	return &SessionHandler{
		cfg:         cfg,
		log:         log,
		engine:      eng,
		controllers: make(map[string]*sessionuc.Controller),
	}
}

type CreateSessionRequest struct {
	UserID    string `json:"user_id"`
	BoardSize int    `json:"board_size"`
	VsBot     bool   `json:"vs_bot"`
	RuleStyle string `json:"rule_style"`
	FirstSeat int    `json:"first_seat"`
	BotID     string `json:"bot_id"`
}

type MoveRequest struct {
	UserID string `json:"user_id"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

type SwapRequest struct {
	UserID string `json:"user_id"`
	Swap   bool   `json:"swap"`
}

type UserRequest struct {
	UserID string `json:"user_id"`
}

type StateResponse struct {
	State domsession.Session `json:"state"`
}

type SuggestionResponse struct {
	Best  []pv.Step `json:"best"`
	Worst []pv.Step `json:"worst"`
}

func (h *SessionHandler) HandleNewSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Error("new session: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}
	if req.UserID == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "user_id is required"})
		return
	}
	if req.BoardSize < h.cfg.MinBoardSize || req.BoardSize > h.cfg.MaxBoardSize {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "board size out of bounds"})
		return
	}

	ctrl := sessionuc.NewController(h.log, h.engine)
	err := ctrl.Create(r.Context(), domsession.Config{
		BoardSize: req.BoardSize,
		VsBot:     req.VsBot,
		RuleStyle: req.RuleStyle,
		FirstSeat: req.FirstSeat,
		BotID:     req.BotID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.mu.Lock()
	h.controllers[req.UserID] = ctrl
	h.mu.Unlock()

	h.writeState(w, ctrl)
}

func (h *SessionHandler) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	ctrl, ok := h.controller(req.UserID)
	if !ok {
		h.writeError(w, errs.ErrSessionNotFound)
		return
	}
	if err := ctrl.Play(r.Context(), req.Row, req.Col); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeState(w, ctrl)
}

func (h *SessionHandler) HandleSwap(w http.ResponseWriter, r *http.Request) {
	var req SwapRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	ctrl, ok := h.controller(req.UserID)
	if !ok {
		h.writeError(w, errs.ErrSessionNotFound)
		return
	}
	if err := ctrl.ResolveOpeningDecision(r.Context(), req.Swap); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeState(w, ctrl)
}

func (h *SessionHandler) HandleStepBack(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*sessionuc.Controller).StepBack)
}

func (h *SessionHandler) HandleStepForward(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, (*sessionuc.Controller).StepForward)
}

func (h *SessionHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	var req UserRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	ctrl, ok := h.controller(req.UserID)
	if !ok {
		h.writeError(w, errs.ErrSessionNotFound)
		return
	}
	if err := ctrl.Reset(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeState(w, ctrl)
}

func (h *SessionHandler) HandleSuggestion(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(r.URL.Query().Get("user_id"))
	if !ok {
		h.writeError(w, errs.ErrSessionNotFound)
		return
	}

	best, worst, err := ctrl.Suggest(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, SuggestionResponse{Best: best, Worst: worst})
}

func (h *SessionHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := h.controller(r.URL.Query().Get("user_id"))
	if !ok {
		h.writeError(w, errs.ErrSessionNotFound)
		return
	}
	h.writeState(w, ctrl)
}

func (h *SessionHandler) step(w http.ResponseWriter, r *http.Request, op func(*sessionuc.Controller, context.Context) error) {
	var req UserRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	ctrl, ok := h.controller(req.UserID)
	if !ok {
		h.writeError(w, errs.ErrSessionNotFound)
		return
	}
	if err := op(ctrl, r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeState(w, ctrl)
}

func (h *SessionHandler) controller(userID string) (*sessionuc.Controller, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ctrl, ok := h.controllers[userID]
	return ctrl, ok && userID != ""
}

func (h *SessionHandler) writeState(w http.ResponseWriter, ctrl *sessionuc.Controller) {
	snap, ok := ctrl.Snapshot()
	if !ok {
		h.writeError(w, errs.ErrSessionNotFound)
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, StateResponse{State: snap})
}

// Failed or rejected intents must leave the displayed board untouched:
// the error goes out as a transient message, never as a state payload.
func (h *SessionHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrRejectedMove),
		errors.Is(err, errs.ErrCreationFailed),
		errors.Is(err, errs.ErrOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrTransport):
		status = http.StatusBadGateway
	}
	h.log.Error(err)
	httpresponse.WriteResponseWithStatus(w, status,
		httpresponse.ErrorResponse{ErrorDescription: err.Error()})
}
