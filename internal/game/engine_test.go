package game

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder captures engine events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) since(gen uint64) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Generation >= gen {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// setupEngine deals order exactly and drives time through a ManualClock.
func setupEngine(t *testing.T, order ...Token) (*Engine, *ManualClock, *recorder) {
	t.Helper()
	var alphabet []Token
	seen := map[Token]bool{}
	for _, tok := range order {
		if !seen[tok] {
			seen[tok] = true
			alphabet = append(alphabet, tok)
		}
	}
	clock := NewManualClock()
	e, err := New(alphabet,
		WithScheduler(clock),
		WithDealer(FixedDealer(order)),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	rec := &recorder{}
	e.Subscribe(rec.listen)
	t.Cleanup(e.Close)
	return e, clock, rec
}

func cardStates(e *Engine) []CardState {
	var out []CardState
	for _, c := range e.Board() {
		out = append(out, c.State)
	}
	return out
}

func TestNewRejectsBadAlphabet(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New([]Token{"A", "A"})
	assert.Error(t, err)

	_, err = New([]Token{"A", ""})
	assert.Error(t, err)
}

func TestFreshBoardHoldsEveryTokenTwice(t *testing.T) {
	alphabet := []Token{"🎮", "🎯", "🎲", "🎪", "🎨", "🎭", "🎸", "🎺"}
	for n := 1; n <= len(alphabet); n++ {
		e, err := New(alphabet[:n], WithScheduler(NewManualClock()), WithLogger(zerolog.Nop()))
		require.NoError(t, err)

		counts := map[Token]int{}
		for i, c := range e.Board() {
			assert.Equal(t, i, c.Position)
			assert.Equal(t, CardHidden, c.State)
			counts[c.Token]++
		}
		require.Len(t, counts, n)
		for tok, c := range counts {
			assert.Equal(t, 2, c, "token %s", tok)
		}
		assert.Equal(t, n, e.TotalPairs())
		e.Close()
	}
}

func TestBrokenDealerFallsBackToShuffle(t *testing.T) {
	e, err := New([]Token{"A", "B"},
		WithScheduler(NewManualClock()),
		WithDealer(FixedDealer([]Token{"A", "A", "A", "B"})),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	defer e.Close()

	counts := map[Token]int{}
	for _, c := range e.Board() {
		counts[c.Token]++
	}
	assert.Equal(t, map[Token]int{"A": 2, "B": 2}, counts)
}

func TestScenarioTwoPairs(t *testing.T) {
	e, clock, rec := setupEngine(t, "A", "B", "A", "B")

	// Mismatch: A then B.
	require.True(t, e.Select(0))
	require.True(t, e.Select(1))
	st := e.Snapshot()
	assert.Equal(t, PhaseEvaluating, st.Phase)
	assert.True(t, st.Locked)
	assert.Equal(t, Stats{Moves: 1, MatchedPairs: 0, TotalPairs: 2}, st.Stats)

	clock.Advance(1000 * time.Millisecond)
	flagged := rec.ofType(EventCardsMismatched)
	require.Len(t, flagged, 1)
	assert.Equal(t, StageFlag, flagged[0].Stage)
	assert.Equal(t, []int{0, 1}, flagged[0].Pair)
	assert.True(t, e.Snapshot().Locked, "still locked between flag and revert")

	clock.Advance(500 * time.Millisecond)
	mism := rec.ofType(EventCardsMismatched)
	require.Len(t, mism, 2)
	assert.Equal(t, StageRevert, mism[1].Stage)
	assert.Equal(t, []CardState{CardHidden, CardHidden, CardHidden, CardHidden}, cardStates(e))
	st = e.Snapshot()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.False(t, st.Locked)
	assert.Equal(t, 1, st.Stats.Moves)
	assert.Equal(t, 0, st.Stats.MatchedPairs)

	// Match: A and A.
	require.True(t, e.Select(0))
	require.True(t, e.Select(2))
	clock.Advance(600 * time.Millisecond)
	st = e.Snapshot()
	assert.Equal(t, Stats{Moves: 2, MatchedPairs: 1, TotalPairs: 2}, st.Stats)
	assert.Equal(t, CardMatched, st.Cards[0].State)
	assert.Equal(t, CardMatched, st.Cards[2].State)
	assert.Equal(t, PhaseIdle, st.Phase)

	// Match: B and B → victory.
	require.True(t, e.Select(1))
	require.True(t, e.Select(3))
	clock.Advance(600 * time.Millisecond)
	st = e.Snapshot()
	assert.Equal(t, PhaseWon, st.Phase)
	assert.Equal(t, Stats{Moves: 3, MatchedPairs: 2, TotalPairs: 2}, st.Stats)
	_, announced := e.Summary()
	assert.False(t, announced, "summary waits for the presentation delay")
	assert.Empty(t, rec.ofType(EventVictory))

	clock.Advance(800 * time.Millisecond)
	sum, ok := e.Summary()
	require.True(t, ok)
	assert.Equal(t, 3, sum.Moves)

	victories := rec.ofType(EventVictory)
	require.Len(t, victories, 1)
	assert.Equal(t, 3, victories[0].Summary.Moves)

	clock.Advance(time.Minute)
	assert.Len(t, rec.ofType(EventVictory), 1, "victory fires exactly once")
}

func TestSelectSameCardTwiceIsIdempotent(t *testing.T) {
	e, _, rec := setupEngine(t, "A", "B", "A", "B")

	require.True(t, e.Select(0))
	assert.False(t, e.Select(0))

	st := e.Snapshot()
	assert.Equal(t, PhaseAwaitingSecond, st.Phase)
	assert.Equal(t, 0, st.Stats.Moves)
	assert.False(t, st.Locked)
	assert.Len(t, rec.ofType(EventCardRevealed), 1)
}

func TestThirdSelectionWhileLockedIsRejected(t *testing.T) {
	e, clock, _ := setupEngine(t, "A", "B", "A", "B")

	require.True(t, e.Select(0))
	require.True(t, e.Select(1))
	before := cardStates(e)

	assert.False(t, e.Select(2))
	assert.False(t, e.Select(3))
	assert.Equal(t, before, cardStates(e))
	assert.Equal(t, 1, e.Snapshot().Stats.Moves)

	clock.Advance(1500 * time.Millisecond)
	assert.True(t, e.Select(2), "accepted once the pair has resolved")
}

func TestOutOfRangeAndMatchedSelectionsAreNoOps(t *testing.T) {
	e, clock, _ := setupEngine(t, "A", "A", "B", "B")

	assert.False(t, e.Select(-1))
	assert.False(t, e.Select(4))

	require.True(t, e.Select(0))
	require.True(t, e.Select(1))
	clock.Advance(600 * time.Millisecond)

	assert.False(t, e.Select(0), "matched card")
	assert.False(t, e.Select(1), "matched card")
	assert.Equal(t, PhaseIdle, e.Snapshot().Phase)
}

func TestMatchAccounting(t *testing.T) {
	e, clock, rec := setupEngine(t, "A", "B", "C", "A", "B", "C")

	require.True(t, e.Select(0))
	require.True(t, e.Select(3))
	clock.Advance(600 * time.Millisecond)

	st := e.Snapshot()
	assert.Equal(t, 1, st.Stats.Moves)
	assert.Equal(t, 1, st.Stats.MatchedPairs)
	assert.Equal(t, CardMatched, st.Cards[0].State)
	assert.Equal(t, CardMatched, st.Cards[3].State)
	assert.Equal(t, Token("A"), st.Cards[0].Token)
	assert.Empty(t, st.Cards[1].Token, "hidden cards do not expose their token")

	matched := rec.ofType(EventCardsMatched)
	require.Len(t, matched, 1)
	assert.Equal(t, []int{0, 3}, matched[0].Pair)
}

func TestMismatchAccounting(t *testing.T) {
	e, clock, _ := setupEngine(t, "A", "B", "C", "A", "B", "C")

	require.True(t, e.Select(0))
	require.True(t, e.Select(1))

	clock.Advance(1000 * time.Millisecond)
	st := e.Snapshot()
	assert.True(t, st.Cards[0].Wrong)
	assert.True(t, st.Cards[1].Wrong)
	assert.Equal(t, CardRevealed, st.Cards[0].State)

	clock.Advance(500 * time.Millisecond)
	st = e.Snapshot()
	assert.Equal(t, 1, st.Stats.Moves)
	assert.Equal(t, 0, st.Stats.MatchedPairs)
	for _, c := range st.Cards {
		assert.Equal(t, CardHidden, c.State)
		assert.False(t, c.Wrong)
	}
}

func TestStopwatchStartsOnFirstSelection(t *testing.T) {
	e, clock, rec := setupEngine(t, "A", "B", "A", "B")

	clock.Advance(5 * time.Second)
	st := e.Snapshot()
	assert.False(t, st.Started)
	assert.Equal(t, 0, st.ElapsedSeconds)
	assert.Equal(t, 0, clock.Pending())

	require.True(t, e.Select(0))
	assert.True(t, e.Snapshot().Started)
	clock.Advance(3 * time.Second)
	assert.Equal(t, 3, e.Snapshot().ElapsedSeconds)

	ticks := rec.ofType(EventTick)
	require.NotEmpty(t, ticks)
	assert.Equal(t, 3, *ticks[len(ticks)-1].Elapsed)
}

func TestStopwatchFreezesAtVictoryInstant(t *testing.T) {
	e, clock, _ := setupEngine(t, "A", "A")

	require.True(t, e.Select(0))
	clock.Advance(2500 * time.Millisecond) // two ticks while deciding
	require.True(t, e.Select(1))
	clock.Advance(600 * time.Millisecond) // match confirmed at 3.1s; tick at 3s counted

	st := e.Snapshot()
	require.Equal(t, PhaseWon, st.Phase)
	frozen := st.ElapsedSeconds
	assert.Equal(t, 3, frozen)

	clock.Advance(800 * time.Millisecond)
	sum, ok := e.Summary()
	require.True(t, ok)
	assert.Equal(t, frozen, sum.ElapsedSeconds, "presentation delay does not count")
	assert.Equal(t, "00:03", sum.Clock)

	clock.Advance(time.Minute)
	assert.Equal(t, frozen, e.Snapshot().ElapsedSeconds)
	assert.Equal(t, 0, clock.Pending())
}

func TestSelectionsIgnoredAfterVictory(t *testing.T) {
	e, clock, _ := setupEngine(t, "A", "A")

	require.True(t, e.Select(0))
	require.True(t, e.Select(1))
	clock.Advance(600 * time.Millisecond)
	require.Equal(t, PhaseWon, e.Snapshot().Phase)

	for i := 0; i < 2; i++ {
		assert.False(t, e.Select(i))
	}
	clock.Advance(800 * time.Millisecond)
	assert.False(t, e.Select(0))
	assert.Equal(t, PhaseWon, e.Snapshot().Phase)
}

func assertFreshGame(t *testing.T, e *Engine) {
	t.Helper()
	st := e.Snapshot()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Equal(t, 0, st.Stats.Moves)
	assert.Equal(t, 0, st.Stats.MatchedPairs)
	assert.Equal(t, 0, st.ElapsedSeconds)
	assert.False(t, st.Started)
	assert.False(t, st.Locked)
	assert.Nil(t, st.Summary)
	for _, c := range st.Cards {
		assert.Equal(t, CardHidden, c.State)
		assert.False(t, c.Wrong)
	}
	_, ok := e.Summary()
	assert.False(t, ok)
}

func TestResetFromAnyState(t *testing.T) {
	t.Run("fresh", func(t *testing.T) {
		e, _, _ := setupEngine(t, "A", "B", "A", "B")
		e.Reset()
		e.Reset()
		assertFreshGame(t, e)
	})

	t.Run("awaiting second", func(t *testing.T) {
		e, clock, _ := setupEngine(t, "A", "B", "A", "B")
		require.True(t, e.Select(0))
		clock.Advance(2 * time.Second)
		e.Reset()
		assertFreshGame(t, e)
		clock.Advance(5 * time.Second)
		assert.Equal(t, 0, e.Snapshot().ElapsedSeconds, "stopwatch stays stopped until the next selection")
	})

	t.Run("mid evaluation", func(t *testing.T) {
		e, clock, _ := setupEngine(t, "A", "B", "A", "B")
		require.True(t, e.Select(0))
		require.True(t, e.Select(1))
		clock.Advance(1200 * time.Millisecond) // between flag and revert
		e.Reset()
		assertFreshGame(t, e)
		assert.Equal(t, 0, clock.Pending())
	})

	t.Run("won before summary", func(t *testing.T) {
		e, clock, rec := setupEngine(t, "A", "A")
		require.True(t, e.Select(0))
		require.True(t, e.Select(1))
		clock.Advance(600 * time.Millisecond)
		e.Reset()
		clock.Advance(time.Second)
		assertFreshGame(t, e)
		assert.Empty(t, rec.ofType(EventVictory))
	})

	t.Run("after victory", func(t *testing.T) {
		e, clock, _ := setupEngine(t, "A", "A")
		require.True(t, e.Select(0))
		require.True(t, e.Select(1))
		clock.Advance(2 * time.Second)
		_, ok := e.Summary()
		require.True(t, ok)
		e.Reset()
		assertFreshGame(t, e)
	})
}

func TestResetEmitsCleanBoard(t *testing.T) {
	e, _, rec := setupEngine(t, "A", "B", "A", "B")
	rec.clear()

	e.Reset()
	evs := rec.since(0)
	require.Len(t, evs, 3)
	assert.Equal(t, EventBoardReset, evs[0].Type)
	assert.Len(t, evs[0].Cards, 4)
	for _, c := range evs[0].Cards {
		assert.Equal(t, CardHidden, c.State)
		assert.Empty(t, c.Token)
	}
	assert.Equal(t, EventStatsChanged, evs[1].Type)
	assert.Equal(t, Stats{TotalPairs: 2}, *evs[1].Stats)
	assert.Equal(t, EventTick, evs[2].Type)
	assert.Equal(t, 0, *evs[2].Elapsed)
}

// noStop schedules through a ManualClock but ignores cancellation, so only
// the generation check stands between an old callback and the new game.
type noStop struct{ *ManualClock }

type ignoredTimer struct{}

func (ignoredTimer) Stop() bool { return false }

func (n noStop) AfterFunc(d time.Duration, f func()) Timer {
	n.ManualClock.AfterFunc(d, f)
	return ignoredTimer{}
}

func TestStaleCallbacksDoNotTouchNewGame(t *testing.T) {
	clock := NewManualClock()
	e, err := New([]Token{"A", "B"},
		WithScheduler(noStop{clock}),
		WithDealer(FixedDealer([]Token{"A", "B", "A", "B"})),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	defer e.Close()
	rec := &recorder{}
	e.Subscribe(rec.listen)

	// A pending match and a running stopwatch from the old game.
	require.True(t, e.Select(0))
	require.True(t, e.Select(2))
	e.Reset()
	gen := e.Snapshot().Generation

	// New game: one card up, waiting for the second.
	require.True(t, e.Select(1))
	clock.Advance(700 * time.Millisecond) // old match callback fires here

	st := e.Snapshot()
	assert.Equal(t, PhaseAwaitingSecond, st.Phase)
	assert.Equal(t, 0, st.Stats.MatchedPairs)
	assert.Equal(t, CardHidden, st.Cards[0].State)
	assert.Equal(t, CardHidden, st.Cards[2].State)
	assert.Equal(t, CardRevealed, st.Cards[1].State)
	for _, ev := range rec.since(0) {
		if ev.Type == EventCardsMatched {
			assert.Less(t, ev.Generation, gen)
		}
	}

	// Old stopwatch ticks must not double-count either.
	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, e.Snapshot().ElapsedSeconds)
}

func TestCloseStopsEverything(t *testing.T) {
	e, clock, _ := setupEngine(t, "A", "B", "A", "B")
	require.True(t, e.Select(0))
	require.True(t, e.Select(1))

	e.Close()
	assert.Equal(t, 0, clock.Pending())
	assert.False(t, e.Select(2))
	e.NewGame()
	assert.Equal(t, PhaseEvaluating, e.Snapshot().Phase, "closed engine ignores resets")
}

func TestListenerPanicDoesNotCorruptEngine(t *testing.T) {
	e, clock, rec := setupEngine(t, "A", "A")
	e.Subscribe(func(Event) { panic("audio device missing") })

	require.True(t, e.Select(0))
	require.True(t, e.Select(1))
	clock.Advance(2 * time.Second)

	_, ok := e.Summary()
	assert.True(t, ok)
	assert.Len(t, rec.ofType(EventVictory), 1)
}

func TestListenerMayCallBackIntoEngine(t *testing.T) {
	e, clock, rec := setupEngine(t, "A", "A")

	// Auto-restart on victory, from inside delivery.
	e.Subscribe(func(ev Event) {
		if ev.Type == EventVictory {
			e.Reset()
		}
	})

	require.True(t, e.Select(0))
	require.True(t, e.Select(1))
	clock.Advance(2 * time.Second)

	assertFreshGame(t, e)
	evs := rec.since(0)
	var order []EventType
	for _, ev := range evs {
		order = append(order, ev.Type)
	}
	require.Contains(t, order, EventVictory)
	last := order[len(order)-3:]
	assert.Equal(t, []EventType{EventBoardReset, EventStatsChanged, EventTick}, last)
}

func TestUnsubscribe(t *testing.T) {
	e, _, _ := setupEngine(t, "A", "A")
	rec := &recorder{}
	stop := e.Subscribe(rec.listen)

	require.True(t, e.Select(0))
	stop()
	e.Reset()

	assert.Len(t, rec.ofType(EventCardRevealed), 1)
	assert.Empty(t, rec.ofType(EventBoardReset))
}

func TestUnsubscribeMidBatchFinishesThatBatch(t *testing.T) {
	e, _, _ := setupEngine(t, "A", "A")
	var got []EventType
	var stop func()
	stop = e.Subscribe(func(ev Event) {
		got = append(got, ev.Type)
		if ev.Type == EventBoardReset {
			stop()
		}
	})

	e.Reset()
	assert.Equal(t, []EventType{EventBoardReset, EventStatsChanged, EventTick}, got)

	e.Reset()
	assert.Len(t, got, 3, "removed for every later batch")
}

func TestWatchStartsWithPrivateSnapshot(t *testing.T) {
	e, _, rec := setupEngine(t, "A", "B", "A", "B")
	require.True(t, e.Select(0))

	w := &recorder{}
	stop := e.Watch(w.listen)
	defer stop()

	require.Len(t, w.events, 1)
	first := w.events[0]
	assert.Equal(t, EventSnapshot, first.Type)
	require.NotNil(t, first.State)
	assert.Equal(t, PhaseAwaitingSecond, first.State.Phase)
	assert.Equal(t, Token("A"), first.State.Cards[0].Token)
	assert.Empty(t, first.State.Cards[1].Token)
	assert.Empty(t, rec.ofType(EventSnapshot), "other listeners never see a watcher's snapshot")

	require.True(t, e.Select(1))
	revealed := w.ofType(EventCardRevealed)
	require.Len(t, revealed, 1)
	assert.Equal(t, 1, *revealed[0].Position)
}

func TestEventsCarryGeneration(t *testing.T) {
	e, _, rec := setupEngine(t, "A", "A")
	g1 := e.Snapshot().Generation
	require.True(t, e.Select(0))
	e.Reset()
	g2 := e.Snapshot().Generation

	assert.Greater(t, g2, g1)
	revealed := rec.ofType(EventCardRevealed)
	require.Len(t, revealed, 1)
	assert.Equal(t, g1, revealed[0].Generation)
	resets := rec.ofType(EventBoardReset)
	require.Len(t, resets, 1)
	assert.Equal(t, g2, resets[0].Generation)
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00", FormatClock(0))
	assert.Equal(t, "00:09", FormatClock(9))
	assert.Equal(t, "01:15", FormatClock(75))
	assert.Equal(t, "60:00", FormatClock(3600))
	assert.Equal(t, "00:00", FormatClock(-4))
}
