// internal/game/events.go
//
// Outbound events and their delivery.
//
// Transitions never call listeners directly. They append to an outbox while
// the engine lock is held; once the lock is released, whichever goroutine
// finds the outbox non-empty and nobody else delivering drains it in order.
// A listener that calls back into the engine (e.g. auto-reset on victory)
// only queues more events, which the same drain loop then delivers.

package game

import "fmt"

// EventType names an outbound engine event.
type EventType string

const (
	EventBoardReset      EventType = "board_reset"
	EventCardRevealed    EventType = "card_revealed"
	EventCardsMatched    EventType = "cards_matched"
	EventCardsMismatched EventType = "cards_mismatched"
	EventStatsChanged    EventType = "stats_changed"
	EventTick            EventType = "tick"
	EventVictory         EventType = "victory"
	EventSnapshot        EventType = "snapshot" // only sent to a new watcher
)

// MismatchStage distinguishes the two cards_mismatched deliveries.
type MismatchStage string

const (
	StageFlag   MismatchStage = "flag"   // show both cards as wrong
	StageRevert MismatchStage = "revert" // turn both face down again
)

// Event is the single payload type handed to listeners. Only the fields
// relevant to Type are set.
type Event struct {
	Type       EventType     `json:"type"`
	Generation uint64        `json:"generation"`
	Cards      []CardView    `json:"cards,omitempty"`
	Position   *int          `json:"position,omitempty"`
	Pair       []int         `json:"pair,omitempty"`
	Stage      MismatchStage `json:"stage,omitempty"`
	Stats      *Stats        `json:"stats,omitempty"`
	Elapsed    *int          `json:"elapsed,omitempty"`
	Summary    *Summary      `json:"summary,omitempty"`
	State      *State        `json:"state,omitempty"`

	to uint64 // single recipient; 0 means every subscriber
}

// Listener receives engine events. It must not block for long: it runs on
// whatever goroutine triggered the transition (request handler or timer).
type Listener func(Event)

type subscription struct {
	id uint64
	fn Listener
}

// Subscribe registers l and returns a function that removes it. A listener
// removed while a batch is being delivered still receives the rest of it.
func (e *Engine) Subscribe(l Listener) (unsubscribe func()) {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscription{id: id, fn: l})
	e.mu.Unlock()

	return func() { e.unsubscribe(id) }
}

// Watch subscribes l and hands it a snapshot event as its first delivery.
// Every later event l sees happened after that snapshot.
func (e *Engine) Watch(l Listener) (unsubscribe func()) {
	e.mu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscription{id: id, fn: l})
	st := e.snapshotLocked()
	e.outbox = append(e.outbox, Event{Type: EventSnapshot, Generation: e.gen, State: &st, to: id})
	e.mu.Unlock()
	e.flush()

	return func() { e.unsubscribe(id) }
}

func (e *Engine) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// emit queues ev for delivery. Caller holds e.mu.
func (e *Engine) emit(ev Event) {
	ev.Generation = e.gen
	e.outbox = append(e.outbox, ev)
}

// flush delivers queued events. Caller must NOT hold e.mu.
func (e *Engine) flush() {
	e.mu.Lock()
	if e.delivering {
		e.mu.Unlock()
		return
	}
	e.delivering = true
	for len(e.outbox) > 0 {
		batch := e.outbox
		e.outbox = nil
		subs := append([]subscription(nil), e.subs...)
		e.mu.Unlock()

		for _, ev := range batch {
			for _, s := range subs {
				if ev.to != 0 && ev.to != s.id {
					continue
				}
				e.deliver(s, ev)
			}
		}

		e.mu.Lock()
	}
	e.delivering = false
	e.mu.Unlock()
}

// deliver isolates the engine from a failing listener.
func (e *Engine) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().
				Str("event", string(ev.Type)).
				Uint64("listener", s.id).
				Err(fmt.Errorf("%v", r)).
				Msg("listener panicked")
		}
	}()
	s.fn(ev)
}

func intPtr(v int) *int { return &v }
