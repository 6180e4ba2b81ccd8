// Package pv extracts principal variations from the scored continuation
// trees the engine returns on evaluate.
package pv

import "gomoku/internal/domain/session"

// Step is one ply of an extracted variation.
type Step struct {
	Row   int     `json:"row"`
	Col   int     `json:"col"`
	Score float64 `json:"score"`
}

// Best walks the tree from the root mover's point of view: at the mover's
// own ply the child with the maximum score is kept, at the opponent's
// reply the minimum. Comparisons are strict, so on equal scores the
// earliest-listed child wins and the output is deterministic.
func Best(root session.MoveEvaluation) []Step {
	return walk(root, true)
}

// Worst is the maximize-the-opponent view of the same walk, used to show
// the losing continuation next to the winning one.
func Worst(root session.MoveEvaluation) []Step {
	return walk(root, false)
}

func walk(root session.MoveEvaluation, maximizing bool) []Step {
	var steps []Step
	node := root
	for len(node.Children) > 0 {
		chosen := node.Children[0]
		for _, child := range node.Children[1:] {
			if maximizing && child.Score > chosen.Score {
				chosen = child
			}
			if !maximizing && child.Score < chosen.Score {
				chosen = child
			}
		}
		steps = append(steps, Step{Row: chosen.Row, Col: chosen.Col, Score: chosen.Score})
		node = chosen
		maximizing = !maximizing
	}
	return steps
}
