// Package actor provides the single-threaded event loop that owns chat state.
//
// One goroutine owns all mutable state. A pure reducer transforms state given
// an input and returns effects; a runtime interprets effects (network calls,
// subscriptions, publishes) and reports their outcome back as new inputs.
// Handlers therefore always run to completion before the next input is
// processed, and no state is shared with transport goroutines.
package actor

import (
	"context"
	"errors"
	"sync"
)

// Input is an item delivered to an actor mailbox: either a command from a
// caller or an event observed by the runtime.
type Input interface {
	isActorInput()
}

// Effect is a declarative side-effect produced by a reducer.
//
// Effects are data, not execution. The Runtime is responsible for interpreting
// effects and emitting resulting events back to the actor mailbox.
type Effect interface {
	isActorEffect()
}

// ReducerFunc is a pure state transition function.
//
// Reducers must not perform I/O, spawn goroutines or read the clock. Replying
// on a caller-provided channel is allowed.
type ReducerFunc[S any] func(state S, input Input) (next S, effects []Effect)

// Runtime interprets effects and emits follow-up inputs back to the actor.
type Runtime interface {
	// HandleEffects executes effects in order on the actor goroutine. emit is
	// only valid on that goroutine, while HandleEffects runs. Work started
	// asynchronously must report back through Enqueue, which keeps order.
	HandleEffects(ctx context.Context, effects []Effect, emit func(Input))

	// Stop releases background work. It may be called multiple times.
	Stop()
}

// Hooks provide optional observability into an actor's execution.
type Hooks[S any] struct {
	// OnInput is called after an input is dequeued, before reducing.
	OnInput func(input Input)
	// OnTransition is called after every reduction with the applied state.
	OnTransition func(prev S, next S, input Input)
	// OnPanic is called when the loop panics. If nil, panics propagate.
	OnPanic func(recovered any)
}

// ErrStopped is returned when an input is offered to a stopped actor.
var ErrStopped = errors.New("actor stopped")

// Actor runs a single-threaded event loop that owns state of type S.
type Actor[S any] struct {
	reduce  ReducerFunc[S]
	runtime Runtime
	hooks   Hooks[S]

	state  S
	inbox  chan Input
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

// Option configures an Actor.
type Option[S any] func(*Actor[S])

// WithHooks attaches hooks for observability.
func WithHooks[S any](hooks Hooks[S]) Option[S] {
	return func(a *Actor[S]) { a.hooks = hooks }
}

// WithMailboxSize sets the actor mailbox buffer size.
func WithMailboxSize[S any](n int) Option[S] {
	return func(a *Actor[S]) {
		if n > 0 {
			a.inbox = make(chan Input, n)
		}
	}
}

// New creates a new actor with initial state, reducer, and runtime.
func New[S any](initial S, reducer ReducerFunc[S], runtime Runtime, opts ...Option[S]) *Actor[S] {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Actor[S]{
		reduce:  reducer,
		runtime: runtime,
		state:   initial,
		inbox:   make(chan Input, 256),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the actor loop in its own goroutine. It is idempotent.
func (a *Actor[S]) Start() {
	a.startOnce.Do(func() { go a.loop() })
}

// Stop cancels the actor context and stops the runtime. It is safe to call
// multiple times and does not wait for the loop to exit; use Done for that.
func (a *Actor[S]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
		if a.runtime != nil {
			a.runtime.Stop()
		}
	})
}

// Done returns a channel that closes when the actor loop exits.
func (a *Actor[S]) Done() <-chan struct{} { return a.done }

// Enqueue delivers an input to the mailbox, waiting for room if it is full.
// Inputs are never dropped while the actor is running; once stopped, Enqueue
// returns ErrStopped.
func (a *Actor[S]) Enqueue(input Input) error {
	if input == nil {
		return nil
	}
	select {
	case <-a.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case a.inbox <- input:
		return nil
	case <-a.ctx.Done():
		return ErrStopped
	}
}

func (a *Actor[S]) loop() {
	defer close(a.done)
	defer func() {
		if r := recover(); r != nil {
			if a.hooks.OnPanic != nil {
				a.hooks.OnPanic(r)
				return
			}
			panic(r)
		}
	}()

	// emit runs on the loop goroutine, which cannot wait on its own full
	// mailbox. Overflow sends are handed to a goroutine and lose ordering.
	emit := func(in Input) {
		select {
		case a.inbox <- in:
		default:
			go func() { _ = a.Enqueue(in) }()
		}
	}

	for {
		select {
		case <-a.ctx.Done():
			return
		case in := <-a.inbox:
			if in == nil {
				continue
			}
			if a.hooks.OnInput != nil {
				a.hooks.OnInput(in)
			}

			prev := a.state
			next, effects := a.reduce(prev, in)
			a.state = next

			if a.hooks.OnTransition != nil {
				a.hooks.OnTransition(prev, next, in)
			}
			if a.runtime != nil && len(effects) > 0 {
				a.runtime.HandleEffects(a.ctx, effects, emit)
			}
		}
	}
}
