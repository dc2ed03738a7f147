// internal/game/timer.go
//
// Per-game stopwatch. Runs from the first accepted selection until victory.

package game

import "time"

// stopwatch counts whole ticks. Deadlines are derived from startedAt so a
// late tick does not push every later tick back.
type stopwatch struct {
	running   bool
	done      bool // stopped for good this game
	startedAt time.Time
	elapsed   int
	task      uint64
}

// startStopwatch is a no-op unless the stopwatch is fresh for this game.
func (e *Engine) startStopwatch() {
	if e.watch.running || e.watch.done {
		return
	}
	e.watch.running = true
	e.watch.startedAt = e.sched.Now()
	e.armTick()
}

func (e *Engine) stopStopwatch() {
	if !e.watch.running {
		return
	}
	e.watch.running = false
	e.watch.done = true
	e.cancel(e.watch.task)
	e.watch.task = 0
}

func (e *Engine) armTick() {
	next := e.watch.startedAt.Add(time.Duration(e.watch.elapsed+1) * e.delays.Tick)
	d := next.Sub(e.sched.Now())
	if d < 0 {
		d = 0
	}
	e.watch.task = e.after(d, e.tick)
}

func (e *Engine) tick() {
	if !e.watch.running {
		return
	}
	e.watch.elapsed++
	e.emit(Event{Type: EventTick, Elapsed: intPtr(e.watch.elapsed)})
	e.armTick()
}
