package state

import (
	"sync"

	"gomoku/internal/domain/session"
)

// SessionState holds exactly one authoritative snapshot at a time.
// Replacement is atomic and wholesale; there are no partial mutation
// methods. Generations tag every exchange so that a response arriving
// after a later reset is discarded instead of applied.
type SessionState struct {
	mu         sync.RWMutex
	snap       session.Session
	hasSnap    bool
	generation uint64
}

func NewSessionState() *SessionState {
	return &SessionState{}
}

// Generation returns the tag a caller must capture before issuing an
// exchange whose response it intends to install.
func (s *SessionState) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// NextGeneration invalidates every outstanding exchange. Called when a
// create or reset begins, so stale responses from the previous session
// can no longer win.
func (s *SessionState) NextGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

// Replace installs snap if gen is still current. Returns false when the
// snapshot is stale and was dropped.
func (s *SessionState) Replace(gen uint64, snap session.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.snap = snap.Clone()
	s.hasSnap = true
	return true
}

// Snapshot returns a deep copy of the current snapshot.
func (s *SessionState) Snapshot() (session.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSnap {
		return session.Session{}, false
	}
	return s.snap.Clone(), true
}

// IsHumanTurn reports whether control currently rests with a human on
// the given seat: game running, no pending decision, seat to move.
func (s *SessionState) IsHumanTurn(seat int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasSnap || s.snap.IsOver || s.snap.PendingAction != session.PendingNone {
		return false
	}
	return s.snap.NextSeat == seat && !s.snap.Players[seat].IsAI
}

func (s *SessionState) CanStepBack() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasSnap && s.snap.TurnPointer > 0
}

func (s *SessionState) CanStepForward() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasSnap && s.snap.TurnPointer < len(s.snap.History)
}
