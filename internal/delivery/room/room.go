package room

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gomoku/internal/bootstrap"
	domroom "gomoku/internal/domain/room"
	"gomoku/internal/domain/session"
	"gomoku/internal/engine"
	errs "gomoku/internal/errors"
	"gomoku/internal/httpresponse"
	repo "gomoku/internal/repository"
	"gomoku/internal/state"
	roomuc "gomoku/internal/usecase/room"
	"gomoku/internal/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Store is the durable side of the room registry the hub depends on.
// *repo.RoomRepository is the production implementation.
type Store interface {
	SaveRoom(ctx context.Context, rm domroom.Room) error
	LoadRoom(ctx context.Context, roomID string) (domroom.Room, error)
	ListRooms(ctx context.Context) ([]domroom.Room, error)
	SaveSnapshot(ctx context.Context, roomID string, snap session.Session) error
	LoadSnapshot(ctx context.Context, roomID string) (session.Session, bool)
	SaveSeatClaim(ctx context.Context, token string, claim repo.SeatClaim) error
	LoadSeatClaim(ctx context.Context, token string) (repo.SeatClaim, bool)
	DeleteSeatClaim(ctx context.Context, token string) error
	ArchiveGame(ctx context.Context, archived repo.ArchivedGame) error
	GetArchivedGame(ctx context.Context, roomID string) (repo.ArchivedGame, error)
}

// RoomHandler hosts shared rooms. Every state change inside a room is an
// exchange with the engine followed by a snapshot push to every member;
// members never receive direct responses to their own sends.
type RoomHandler struct {
	cfg    bootstrap.Config
	log    *zap.SugaredLogger
	engine engine.Engine
	repo   Store

	mu    sync.RWMutex
	rooms map[string]*liveRoom
}

// liveRoom serializes everything through one mutex: engine exchanges,
// seat changes and conn writes. The engine is the single source of
// sequencing truth, the room only relays in arrival order.
type liveRoom struct {
	mu         sync.Mutex
	room       domroom.Room
	negotiator *roomuc.Negotiator
	state      *state.SessionState
	conns      map[*websocket.Conn]string
	archived   bool
}

func NewRoomHandler(cfg bootstrap.Config, log *zap.SugaredLogger, eng engine.Engine, repository Store) *RoomHandler {
	return &RoomHandler{
		cfg:    cfg,
		log:    log,
		engine: eng,
		repo:   repository,
		rooms:  make(map[string]*liveRoom),
	}
}

func (h *RoomHandler) HandleNewRoom(w http.ResponseWriter, r *http.Request) {
	var req domroom.CreateRoomRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		h.log.Error("new room: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}
	if req.BoardSize < h.cfg.MinBoardSize || req.BoardSize > h.cfg.MaxBoardSize {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "board size out of bounds"})
		return
	}

	ctx := r.Context()

	// Shared rooms are always human vs human; the engine still owns the
	// opening rule and will raise the pending decision when configured.
	snap, err := h.engine.CreateSession(ctx, session.Config{
		BoardSize: req.BoardSize,
		VsBot:     false,
		RuleStyle: req.RuleStyle,
		FirstSeat: session.SeatA,
	})
	if err != nil {
		h.log.Error("create session for room: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	roomID, err := h.generateRoomID(ctx)
	if err != nil {
		h.log.Error("generate room id: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	newRoom := domroom.Room{
		ID:        roomID,
		BoardSize: req.BoardSize,
		RuleStyle: req.RuleStyle,
		CreatedAt: time.Now(),
	}

	lr := &liveRoom{
		room:       newRoom,
		negotiator: roomuc.NewNegotiator(),
		state:      state.NewSessionState(),
		conns:      make(map[*websocket.Conn]string),
	}
	lr.state.Replace(lr.state.Generation(), snap)

	h.mu.Lock()
	h.rooms[newRoom.ID] = lr
	h.mu.Unlock()

	if err := h.repo.SaveRoom(ctx, newRoom); err != nil {
		h.log.Error("save room: ", err)
	}
	if err := h.repo.SaveSnapshot(ctx, newRoom.ID, snap); err != nil {
		h.log.Error("save snapshot: ", err)
	}

	h.log.Infof("room %s created, session %s", newRoom.ID, snap.ID)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, domroom.CreateRoomResponse{RoomID: newRoom.ID})
}

// HandleRooms lists every room still alive in the registry.
func (h *RoomHandler) HandleRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.repo.ListRooms(r.Context())
	if err != nil {
		h.log.Error("list rooms: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusInternalServerError,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, rooms)
}

func (h *RoomHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	archived, err := h.repo.GetArchivedGame(r.Context(), r.URL.Query().Get("room_id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, errs.ErrGameNotFound) {
			status = http.StatusNotFound
		}
		httpresponse.WriteResponseWithStatus(w, status,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, archived)
}

// HandleConnect upgrades to a websocket and joins the client to a room.
// The client supplies its identity token; the transport session carries
// no identity of its own.
func (h *RoomHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	token := r.URL.Query().Get("token")
	if token == "" {
		token = uuid.New().String()
	}

	lr, err := h.liveRoom(r.Context(), roomID)
	if err != nil {
		h.log.Error("connect: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusNotFound,
			httpresponse.ErrorResponse{ErrorDescription: err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("upgrade error: ", err)
		return
	}

	h.register(r.Context(), lr, conn, token)

	defer h.unregister(lr, conn, token)

	for {
		var msg domroom.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		h.dispatch(r.Context(), lr, conn, token, msg)
	}
}

func (h *RoomHandler) dispatch(ctx context.Context, lr *liveRoom, conn *websocket.Conn, token string, msg domroom.ClientMessage) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	var err error
	switch msg.Type {
	case domroom.MsgJoin:
		err = h.join(ctx, lr, conn, token, msg.Role)
	case domroom.MsgMove:
		err = h.move(ctx, lr, token, msg.Row, msg.Col)
	case domroom.MsgSwap:
		err = h.swap(ctx, lr, token, msg.Swap)
	case domroom.MsgReset:
		err = h.reset(ctx, lr)
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		h.send(lr, conn, domroom.ServerMessage{
			Type:    domroom.MsgError,
			RoomID:  lr.room.ID,
			Message: err.Error(),
		})
	}
}

func (h *RoomHandler) join(ctx context.Context, lr *liveRoom, conn *websocket.Conn, token string, role int) error {
	avail, err := lr.negotiator.RequestSeat(token, role)
	if err != nil {
		return err
	}
	// A spectator request stands the token up, so its claim must not
	// resurrect the seat on reconnect.
	if role == domroom.RoleSpectator {
		if err := h.repo.DeleteSeatClaim(ctx, token); err != nil {
			h.log.Error("delete seat claim: ", err)
		}
	} else if err := h.repo.SaveSeatClaim(ctx, token, repo.SeatClaim{RoomID: lr.room.ID, Role: role}); err != nil {
		h.log.Error("save seat claim: ", err)
	}

	h.send(lr, conn, domroom.ServerMessage{
		Type:         domroom.MsgIdentity,
		RoomID:       lr.room.ID,
		Role:         role,
		Availability: &avail,
		Ready:        lr.negotiator.Ready(),
	})
	h.broadcastAvailability(lr)
	return nil
}

func (h *RoomHandler) move(ctx context.Context, lr *liveRoom, token string, row, col int) error {
	seat, err := h.seatOf(lr, token)
	if err != nil {
		return err
	}

	snap, ok := lr.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}
	if snap.IsOver {
		return errs.ErrGameOver
	}
	if snap.PendingAction == session.PendingOpeningDecision {
		return errs.ErrAwaitingDecision
	}
	if snap.NextSeat != seat {
		return errs.ErrNotYourTurn
	}

	gen := lr.state.Generation()
	next, err := h.engine.SubmitMove(ctx, snap.ID, row, col)
	if err != nil {
		return err
	}
	h.install(ctx, lr, gen, next)
	return nil
}

func (h *RoomHandler) swap(ctx context.Context, lr *liveRoom, token string, doSwap bool) error {
	seat, err := h.seatOf(lr, token)
	if err != nil {
		return err
	}

	snap, ok := lr.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}
	if snap.PendingAction != session.PendingOpeningDecision {
		return errs.ErrRejectedMove
	}
	// Only the seat the engine named may decide.
	if snap.DecidingSeat != seat {
		return errs.ErrNotYourTurn
	}

	gen := lr.state.Generation()
	next, err := h.engine.ResolveOpeningDecision(ctx, snap.ID, doSwap)
	if err != nil {
		return err
	}
	h.install(ctx, lr, gen, next)
	return nil
}

func (h *RoomHandler) reset(ctx context.Context, lr *liveRoom) error {
	snap, ok := lr.state.Snapshot()
	if !ok {
		return errs.ErrSessionNotFound
	}

	gen := lr.state.NextGeneration()
	next, err := h.engine.Reset(ctx, snap.ID)
	if err != nil {
		return err
	}
	lr.archived = false
	h.install(ctx, lr, gen, next)
	return nil
}

func (h *RoomHandler) seatOf(lr *liveRoom, token string) (int, error) {
	role := lr.negotiator.RoleOf(token)
	seat, ok := domroom.SessionSeat(role)
	if !ok {
		return 0, fmt.Errorf("%w: spectators cannot play", errs.ErrRejectedMove)
	}
	if !lr.negotiator.Ready() {
		return 0, errs.ErrRoomNotReady
	}
	return seat, nil
}

// install replaces the room's snapshot, pushes it to every member,
// caches it and archives the game once it is over.
func (h *RoomHandler) install(ctx context.Context, lr *liveRoom, gen uint64, snap session.Session) {
	if !lr.state.Replace(gen, snap) {
		return
	}
	if err := h.repo.SaveSnapshot(ctx, lr.room.ID, snap); err != nil {
		h.log.Error("save snapshot: ", err)
	}

	update := domroom.ServerMessage{
		Type:   domroom.MsgUpdate,
		RoomID: lr.room.ID,
		State:  &snap,
	}
	for conn := range lr.conns {
		h.send(lr, conn, update)
	}

	if snap.IsOver && !lr.archived {
		lr.archived = true
		if err := h.repo.ArchiveGame(ctx, repo.ArchivedGame{
			RoomID:     lr.room.ID,
			RuleStyle:  lr.room.RuleStyle,
			FinishedAt: time.Now(),
			Final:      snap,
		}); err != nil {
			h.log.Error("archive game: ", err)
		}
	}
}

func (h *RoomHandler) register(ctx context.Context, lr *liveRoom, conn *websocket.Conn, token string) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	// A token reconnecting over a fresh transport displaces its old one.
	for old, oldToken := range lr.conns {
		if oldToken == token {
			h.send(lr, old, domroom.ServerMessage{
				Type:    domroom.MsgError,
				RoomID:  lr.room.ID,
				Message: "replaced by a new connection",
			})
			old.Close()
			delete(lr.conns, old)
		}
	}
	lr.conns[conn] = token

	// Seat recovery: if this token held a seat here and nobody took it
	// over, it is granted back; otherwise the client is a spectator again.
	role := lr.negotiator.RoleOf(token)
	if role == domroom.RoleSpectator {
		if claim, found := h.repo.LoadSeatClaim(ctx, token); found && claim.RoomID == lr.room.ID {
			if _, err := lr.negotiator.RequestSeat(token, claim.Role); err == nil {
				role = claim.Role
			}
		}
	}

	avail := lr.negotiator.Availability()
	h.send(lr, conn, domroom.ServerMessage{
		Type:         domroom.MsgIdentity,
		RoomID:       lr.room.ID,
		Role:         role,
		Availability: &avail,
		Ready:        lr.negotiator.Ready(),
	})

	if snap, ok := lr.state.Snapshot(); ok {
		h.send(lr, conn, domroom.ServerMessage{
			Type:   domroom.MsgUpdate,
			RoomID: lr.room.ID,
			State:  &snap,
		})
	}
	h.broadcastAvailability(lr)
}

func (h *RoomHandler) unregister(lr *liveRoom, conn *websocket.Conn, token string) {
	conn.Close()

	lr.mu.Lock()
	defer lr.mu.Unlock()

	if lr.conns[conn] != token {
		return
	}
	delete(lr.conns, conn)

	// The seat goes back to available; the redis claim stays so the same
	// token can recover it before anyone else sits down.
	if _, released := lr.negotiator.Release(token); released {
		h.broadcastAvailability(lr)
	}
}

func (h *RoomHandler) broadcastAvailability(lr *liveRoom) {
	avail := lr.negotiator.Availability()
	msg := domroom.ServerMessage{
		Type:         domroom.MsgAvailability,
		RoomID:       lr.room.ID,
		Availability: &avail,
		Ready:        lr.negotiator.Ready(),
	}
	for conn := range lr.conns {
		h.send(lr, conn, msg)
	}
}

func (h *RoomHandler) send(lr *liveRoom, conn *websocket.Conn, msg domroom.ServerMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Error("write to client: ", err)
		conn.Close()
		delete(lr.conns, conn)
	}
}

// liveRoom returns the in-memory room, restoring it from the registry
// after a restart when needed.
func (h *RoomHandler) liveRoom(ctx context.Context, roomID string) (*liveRoom, error) {
	h.mu.RLock()
	lr, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok {
		return lr, nil
	}

	stored, err := h.repo.LoadRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	lr = &liveRoom{
		room:       stored,
		negotiator: roomuc.NewNegotiator(),
		state:      state.NewSessionState(),
		conns:      make(map[*websocket.Conn]string),
	}
	if snap, found := h.repo.LoadSnapshot(ctx, roomID); found {
		lr.state.Replace(lr.state.Generation(), snap)
	}

	h.mu.Lock()
	if existing, ok := h.rooms[roomID]; ok {
		lr = existing
	} else {
		h.rooms[roomID] = lr
	}
	h.mu.Unlock()

	return lr, nil
}

// Room ids are short join codes: a uuid hashed down to five digits,
// retried on collision. A code counts as free only on a confirmed
// registry miss; a registry failure must never mint a code that may
// collide with a persisted room.
func (h *RoomHandler) generateRoomID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 32; attempt++ {
		hash := md5.Sum([]byte(uuid.New().String()))
		code := fmt.Sprintf("%05d", binary.BigEndian.Uint32(hash[:4])%100000)

		h.mu.RLock()
		_, taken := h.rooms[code]
		h.mu.RUnlock()
		if taken {
			continue
		}
		if _, err := h.repo.LoadRoom(ctx, code); !errors.Is(err, errs.ErrRoomNotFound) {
			continue
		}
		return code, nil
	}
	return "", fmt.Errorf("%w: could not allocate a free room code", errs.ErrInternal)
}
