// internal/game/types.go
//
// Core type definitions for the concentration engine.
// Defines:
//   - Token / Card / CardState: the dealt board.
//   - Phase: where the engine is in the turn cycle.
//   - Stats / Summary / State: read-only views handed to callers.

package game

import "fmt"

// Token is the symbol a card shows when face up. A pair shares one token.
type Token string

// CardState is the visible state of a single board slot.
type CardState string

const (
	CardHidden   CardState = "hidden"
	CardRevealed CardState = "revealed"
	CardMatched  CardState = "matched"
)

// Card is one slot on the board.
type Card struct {
	Position int       // Index on the board, 0..2N-1.
	Token    Token     // Fixed at deal time.
	State    CardState // hidden → revealed → (matched | hidden)
	Wrong    bool      // Set between the two mismatch stages.
}

// Phase is the engine's position in the turn cycle.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAwaitingSecond Phase = "awaiting_second"
	PhaseEvaluating     Phase = "evaluating"
	PhaseWon            Phase = "won"
)

// Stats mirrors the counters shown next to the board.
type Stats struct {
	Moves        int `json:"moves"`
	MatchedPairs int `json:"matchedPairs"`
	TotalPairs   int `json:"totalPairs"`
}

// Summary is the end-of-game result. It exists only after victory has been
// announced and is discarded by the next reset.
type Summary struct {
	Moves          int    `json:"moves"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	Clock          string `json:"clock"`
}

// CardView is the client-facing representation of a card.
// Token is only included when the card is revealed or matched.
type CardView struct {
	Position int       `json:"position"`
	Token    Token     `json:"token,omitempty"`
	State    CardState `json:"state"`
	Wrong    bool      `json:"wrong,omitempty"`
}

// State is a point-in-time copy of everything the engine owns.
type State struct {
	Generation     uint64     `json:"generation"`
	Phase          Phase      `json:"phase"`
	Cards          []CardView `json:"cards"`
	Stats          Stats      `json:"stats"`
	Started        bool       `json:"started"`
	Locked         bool       `json:"locked"`
	ElapsedSeconds int        `json:"elapsedSeconds"`
	Summary        *Summary   `json:"summary,omitempty"`
}

// view hides the token of a face-down card.
func (c Card) view() CardView {
	v := CardView{Position: c.Position, State: c.State, Wrong: c.Wrong}
	if c.State != CardHidden {
		v.Token = c.Token
	}
	return v
}

// FormatClock renders seconds as MM:SS. Minutes keep growing past 99.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
