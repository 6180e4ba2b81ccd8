package session

// MoveEvaluation is the scored continuation tree returned by the engine's
// evaluate call. Scores are from the perspective of the seat to move at
// that node. The tree is read-only and discarded after use; it is never
// part of a Session snapshot.
type MoveEvaluation struct {
	Row      int              `json:"row"`
	Col      int              `json:"col"`
	Score    float64          `json:"score"`
	Children []MoveEvaluation `json:"children,omitempty"`
}
