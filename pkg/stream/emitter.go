package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Emitter is the producer end of one session. It delivers at most one
// terminal event and closes its channel right after it.
type Emitter struct {
	ctx      context.Context
	out      chan Event
	terminal atomic.Bool

	mu     sync.Mutex
	closed bool
}

func NewEmitter(ctx context.Context, buffer int) *Emitter {
	return &Emitter{
		ctx: ctx,
		out: make(chan Event, buffer),
	}
}

func (e *Emitter) Events() <-chan Event {
	return e.out
}

// Send delivers a non-terminal event. It returns false once the session has
// ended or the consumer went away; the producer should stop then.
func (e *Emitter) Send(ev Event) bool {
	if ev.Terminal() || e.terminal.Load() {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	return e.deliver(ev)
}

// Done ends the session normally. Only the first terminal call has any
// effect.
func (e *Emitter) Done() bool {
	return e.finish(Done())
}

// Fail ends the session with an error event.
func (e *Emitter) Fail(err error) bool {
	return e.finish(Failure(err.Error()))
}

// Close releases the channel without a terminal event if none was sent.
func (e *Emitter) Close() {
	if !e.markTerminal() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.close()
}

func (e *Emitter) finish(ev Event) bool {
	if !e.markTerminal() {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ok := e.deliver(ev)
	e.close()
	return ok
}

// markTerminal is the single not-done -> done transition.
func (e *Emitter) markTerminal() bool {
	return e.terminal.CompareAndSwap(false, true)
}

func (e *Emitter) deliver(ev Event) bool {
	select {
	case <-e.ctx.Done():
		return false
	default:
	}

	select {
	case e.out <- ev:
		return true
	case <-e.ctx.Done():
		return false
	}
}

func (e *Emitter) close() {
	if !e.closed {
		e.closed = true
		close(e.out)
	}
}
