package session

// Cell marks on the board. Values match what the engine service sends.
const (
	CellEmpty = 0
	CellBlack = 1
	CellWhite = 2
)

// Seats inside a session. The winner field uses SeatNone while the game
// is still running and SeatDraw for a finished drawn game.
const (
	SeatA = 0
	SeatB = 1

	SeatDraw = -1
	SeatNone = -2
)

// Opening rule variants. The engine owns the exact trigger rules; this
// layer only carries the name and reacts to the pending action it declares.
const (
	RuleStandard = "standard"
	RulePro      = "pro"
	RuleSwap     = "swap"
)

// Pending actions declared by the engine in a snapshot.
const (
	PendingNone            = ""
	PendingOpeningDecision = "opening_decision"
)

type Player struct {
	Color int     `json:"color"`
	IsAI  bool    `json:"is_ai"`
	Score float64 `json:"score"`
	Time  float64 `json:"time"`
}

type CellChange struct {
	Row      int `json:"row"`
	Col      int `json:"col"`
	OldValue int `json:"old_value"`
	NewValue int `json:"new_value"`
}

// MoveResult is the full delta of one applied move: every cell that
// changed plus the score change per seat. Reversing or reapplying a move
// is a pure replay of these deltas, never a re-derivation.
type MoveResult struct {
	CellChanges  []CellChange `json:"cell_changes"`
	ScoreChanges [2]float64   `json:"score_changes"`
}

type Move struct {
	Row    int        `json:"row"`
	Col    int        `json:"col"`
	Result MoveResult `json:"result"`
}

// Session is the canonical snapshot schema. It is produced only by the
// engine service and replaced wholesale; nothing in this layer mutates a
// board cell by cell.
type Session struct {
	ID            string    `json:"session_id"`
	Board         [][]int   `json:"board"`
	Players       [2]Player `json:"players"`
	History       []Move    `json:"history"`
	TurnPointer   int       `json:"turn_pointer"`
	NextSeat      int       `json:"next_seat"`
	PendingAction string    `json:"pending_action"`
	DecidingSeat  int       `json:"deciding_seat"`
	IsOver        bool      `json:"is_over"`
	WinnerSeat    int       `json:"winner_seat"`
}

// Config is the parameter set sent to the engine when creating a session.
type Config struct {
	BoardSize int    `json:"board_size"`
	VsBot     bool   `json:"vs_bot"`
	RuleStyle string `json:"rule_style"`
	FirstSeat int    `json:"first_seat"`
	BotID     string `json:"bot_id,omitempty"`
}

// Clone returns a deep copy so that a stored snapshot can never be
// mutated through a slice shared with a caller.
func (s Session) Clone() Session {
	out := s
	out.Board = make([][]int, len(s.Board))
	for i, row := range s.Board {
		out.Board[i] = append([]int(nil), row...)
	}
	out.History = make([]Move, len(s.History))
	for i, mv := range s.History {
		mv.Result.CellChanges = append([]CellChange(nil), mv.Result.CellChanges...)
		out.History[i] = mv
	}
	return out
}

// Apply replays the move's deltas onto board and scores.
func (m MoveResult) Apply(board [][]int, scores *[2]float64) {
	for _, ch := range m.CellChanges {
		board[ch.Row][ch.Col] = ch.NewValue
	}
	scores[SeatA] += m.ScoreChanges[SeatA]
	scores[SeatB] += m.ScoreChanges[SeatB]
}

// Revert undoes exactly what Apply did.
func (m MoveResult) Revert(board [][]int, scores *[2]float64) {
	for _, ch := range m.CellChanges {
		board[ch.Row][ch.Col] = ch.OldValue
	}
	scores[SeatA] -= m.ScoreChanges[SeatA]
	scores[SeatB] -= m.ScoreChanges[SeatB]
}

// EmptyBoard is the size x size all-empty grid.
func EmptyBoard(size int) [][]int {
	board := make([][]int, size)
	for i := range board {
		board[i] = make([]int, size)
	}
	return board
}
