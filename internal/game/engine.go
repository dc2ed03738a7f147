// internal/game/engine.go
//
// Turn/state engine for a single concentration game.
// Responsibilities:
//   - Deal a shuffled board of paired tokens (NewGame / Reset).
//   - Accept or ignore card selections according to the turn cycle.
//   - Resolve a revealed pair after the observation delays (match or mismatch).
//   - Run the per-game stopwatch and detect victory.
//
// Notes:
//   - Every reaction (selection, reset, delayed callback, tick) runs under e.mu,
//     so the engine only ever sees one transition at a time.
//   - Delayed callbacks capture the generation they were scheduled in. A reset
//     bumps the generation and stops every outstanding timer, so a callback
//     from an older game can never touch the new one.
//   - Invalid selections are no-ops. There is no error path once constructed.

package game

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Delays are the presentation pauses between a pair being revealed and the
// engine acting on it, plus the stopwatch resolution.
type Delays struct {
	Match          time.Duration // reveal → cards marked matched
	MismatchFlag   time.Duration // reveal → cards flagged wrong
	MismatchRevert time.Duration // flagged → cards turned face down
	Victory        time.Duration // last match → summary shown
	Tick           time.Duration // stopwatch resolution
}

// DefaultDelays returns the timings the game was tuned with.
func DefaultDelays() Delays {
	return Delays{
		Match:          600 * time.Millisecond,
		MismatchFlag:   1000 * time.Millisecond,
		MismatchRevert: 500 * time.Millisecond,
		Victory:        800 * time.Millisecond,
		Tick:           time.Second,
	}
}

// Option customises an Engine at construction.
type Option func(*Engine)

// WithScheduler replaces the wall clock (tests use a ManualClock).
func WithScheduler(s Scheduler) Option { return func(e *Engine) { e.sched = s } }

// WithDelays overrides the default timings.
func WithDelays(d Delays) Option { return func(e *Engine) { e.delays = d } }

// WithDealer overrides how the deck is ordered for each new game.
func WithDealer(d Dealer) Option { return func(e *Engine) { e.dealer = d } }

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

// Engine owns all mutable state of one game session.
type Engine struct {
	mu sync.Mutex

	alphabet []Token
	sched    Scheduler
	delays   Delays
	dealer   Dealer
	rng      *rand.Rand
	log      zerolog.Logger

	gen     uint64
	closed  bool
	board   []Card
	phase   Phase
	pair    [2]int // revealedPair; only the first npair entries are meaningful
	npair   int
	matched int
	moves   int
	started bool
	locked  bool
	watch   stopwatch
	summary *Summary

	nextTask uint64
	tasks    map[uint64]Timer

	nextSub    uint64
	subs       []subscription
	outbox     []Event
	delivering bool
}

// New builds an engine over alphabet and deals the first board.
// Each token of the alphabet appears exactly twice on the board.
func New(alphabet []Token, opts ...Option) (*Engine, error) {
	if len(alphabet) == 0 {
		return nil, errors.New("game: empty alphabet")
	}
	seen := make(map[Token]struct{}, len(alphabet))
	for _, t := range alphabet {
		if t == "" {
			return nil, errors.New("game: empty token in alphabet")
		}
		if _, dup := seen[t]; dup {
			return nil, errors.New("game: duplicate token " + string(t))
		}
		seen[t] = struct{}{}
	}

	e := &Engine{
		alphabet: append([]Token(nil), alphabet...),
		sched:    WallClock{},
		delays:   DefaultDelays(),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		log:      log.Logger.With().Str("component", "game").Logger(),
		tasks:    make(map[uint64]Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.dealer == nil {
		e.dealer = RandomDealer(e.rng)
	}

	e.NewGame()
	return e, nil
}

// NewGame discards the current game and deals a fresh one. It is safe to call
// from any state, any number of times.
func (e *Engine) NewGame() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.resetLocked()
	e.mu.Unlock()
	e.flush()
}

// Reset is the player's "new game" button.
func (e *Engine) Reset() { e.NewGame() }

// Close cancels all pending work. Afterwards the engine ignores every input.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.cancelAll()
	e.gen++
	e.closed = true
}

// Select reacts to the player choosing the card at position. It reports
// whether the selection changed anything; ignored selections are not errors.
func (e *Engine) Select(position int) bool {
	e.mu.Lock()
	ok := e.selectLocked(position)
	e.mu.Unlock()
	e.flush()
	return ok
}

func (e *Engine) selectLocked(pos int) bool {
	switch {
	case e.closed:
		return false
	case pos < 0 || pos >= len(e.board):
		e.log.Debug().Int("position", pos).Msg("select out of range")
		return false
	case e.locked, e.phase == PhaseEvaluating, e.phase == PhaseWon:
		e.log.Debug().Int("position", pos).Str("phase", string(e.phase)).Msg("select ignored")
		return false
	}

	c := &e.board[pos]
	if c.State != CardHidden {
		return false
	}

	if !e.started {
		e.started = true
		e.startStopwatch()
	}

	c.State = CardRevealed
	e.emit(Event{Type: EventCardRevealed, Position: intPtr(pos)})

	switch e.phase {
	case PhaseIdle:
		e.pair[0], e.npair = pos, 1
		e.phase = PhaseAwaitingSecond
	case PhaseAwaitingSecond:
		e.pair[1], e.npair = pos, 2
		e.locked = true
		e.moves++
		e.phase = PhaseEvaluating
		e.emitStats()
		e.evaluate()
	}
	return true
}

// evaluate schedules the resolution of the revealed pair.
func (e *Engine) evaluate() {
	a, b := e.pair[0], e.pair[1]
	if e.board[a].Token == e.board[b].Token {
		e.after(e.delays.Match, func() { e.confirmMatch(a, b) })
		return
	}
	e.after(e.delays.MismatchFlag, func() { e.flagMismatch(a, b) })
}

func (e *Engine) confirmMatch(a, b int) {
	e.board[a].State = CardMatched
	e.board[b].State = CardMatched
	e.matched++
	e.clearPair()
	e.emit(Event{Type: EventCardsMatched, Pair: []int{a, b}})
	e.emitStats()

	if e.matched < len(e.alphabet) {
		e.phase = PhaseIdle
		return
	}

	// Freeze the clock now; the summary waits only for presentation.
	e.phase = PhaseWon
	e.stopStopwatch()
	e.log.Info().
		Int("moves", e.moves).
		Int("elapsed", e.watch.elapsed).
		Msg("all pairs found")
	e.after(e.delays.Victory, e.announceVictory)
}

func (e *Engine) announceVictory() {
	s := Summary{
		Moves:          e.moves,
		ElapsedSeconds: e.watch.elapsed,
		Clock:          FormatClock(e.watch.elapsed),
	}
	e.summary = &s
	e.emit(Event{Type: EventVictory, Summary: &s})
}

func (e *Engine) flagMismatch(a, b int) {
	e.board[a].Wrong = true
	e.board[b].Wrong = true
	e.emit(Event{Type: EventCardsMismatched, Pair: []int{a, b}, Stage: StageFlag})
	e.after(e.delays.MismatchRevert, func() { e.revertMismatch(a, b) })
}

func (e *Engine) revertMismatch(a, b int) {
	for _, p := range []int{a, b} {
		e.board[p].State = CardHidden
		e.board[p].Wrong = false
	}
	e.clearPair()
	e.phase = PhaseIdle
	e.emit(Event{Type: EventCardsMismatched, Pair: []int{a, b}, Stage: StageRevert})
}

func (e *Engine) clearPair() {
	e.npair = 0
	e.locked = false
}

func (e *Engine) emitStats() {
	s := e.statsLocked()
	e.emit(Event{Type: EventStatsChanged, Stats: &s})
}

func (e *Engine) statsLocked() Stats {
	return Stats{Moves: e.moves, MatchedPairs: e.matched, TotalPairs: len(e.alphabet)}
}

// resetLocked clears every field before the new board is announced.
func (e *Engine) resetLocked() {
	e.cancelAll()
	e.gen++

	e.watch = stopwatch{}
	e.phase = PhaseIdle
	e.npair = 0
	e.matched = 0
	e.moves = 0
	e.started = false
	e.locked = false
	e.summary = nil
	e.board = layout(e.deal())

	e.emit(Event{Type: EventBoardReset, Cards: e.viewsLocked()})
	e.emitStats()
	e.emit(Event{Type: EventTick, Elapsed: intPtr(0)})
	e.log.Debug().Uint64("generation", e.gen).Msg("new board dealt")
}

// deal orders a fresh deck, falling back to a random shuffle if the dealer
// returns something that is not a permutation of the deck.
func (e *Engine) deal() []Token {
	deck := NewDeck(e.alphabet)
	order := e.dealer(deck)
	if !samePairs(deck, order) {
		e.log.Error().Int("dealt", len(order)).Msg("dealer broke pair invariant; reshuffling")
		order = RandomDealer(e.rng)(deck)
	}
	return order
}

func samePairs(deck, order []Token) bool {
	if len(deck) != len(order) {
		return false
	}
	count := make(map[Token]int, len(deck)/2)
	for _, t := range deck {
		count[t]++
	}
	for _, t := range order {
		count[t]--
		if count[t] < 0 {
			return false
		}
	}
	return true
}

// after schedules fn under the current generation. fn runs with e.mu held.
func (e *Engine) after(d time.Duration, fn func()) uint64 {
	gen := e.gen
	e.nextTask++
	id := e.nextTask
	e.tasks[id] = e.sched.AfterFunc(d, func() { e.fire(gen, id, fn) })
	return id
}

func (e *Engine) fire(gen, id uint64, fn func()) {
	e.mu.Lock()
	if gen != e.gen || e.closed {
		e.mu.Unlock()
		e.log.Debug().Uint64("generation", gen).Msg("stale callback dropped")
		return
	}
	if _, live := e.tasks[id]; !live {
		e.mu.Unlock()
		return
	}
	delete(e.tasks, id)
	fn()
	e.mu.Unlock()
	e.flush()
}

func (e *Engine) cancel(id uint64) {
	if t, ok := e.tasks[id]; ok {
		t.Stop()
		delete(e.tasks, id)
	}
}

func (e *Engine) cancelAll() {
	for id, t := range e.tasks {
		t.Stop()
		delete(e.tasks, id)
	}
}

// ---------------------------------------------------------------- views ---

// Snapshot returns a copy of the current game state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() State {
	st := State{
		Generation:     e.gen,
		Phase:          e.phase,
		Cards:          e.viewsLocked(),
		Stats:          e.statsLocked(),
		Started:        e.started,
		Locked:         e.locked,
		ElapsedSeconds: e.watch.elapsed,
	}
	if e.summary != nil {
		s := *e.summary
		st.Summary = &s
	}
	return st
}

// Summary returns the final result once victory has been announced.
func (e *Engine) Summary() (Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.summary == nil {
		return Summary{}, false
	}
	return *e.summary, true
}

// Board returns a copy of the dealt cards, tokens included.
func (e *Engine) Board() []Card {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Card(nil), e.board...)
}

// TotalPairs is the number of pairs on the board.
func (e *Engine) TotalPairs() int { return len(e.alphabet) }

func (e *Engine) viewsLocked() []CardView {
	out := make([]CardView, len(e.board))
	for i, c := range e.board {
		out[i] = c.view()
	}
	return out
}
