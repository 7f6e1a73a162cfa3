// Package flow drives named authentication flows through their ordered
// stages, producing a session or failing. Each flow runs on one
// background goroutine; the interactive path never blocks on network
// I/O. Stage notifications are delivered in order from that goroutine,
// so observers never see stage N+1 before stage N.
package flow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/wintermelt/minecraft_session_keeper/internal/future"
	"github.com/wintermelt/minecraft_session_keeper/internal/profiles"
	"github.com/wintermelt/minecraft_session_keeper/internal/session"
)

// Callback receives stage-transition notifications so observers (a
// progress UI, a logger) can react without polling. One callback per
// active flow; it is invoked exactly once per stage entered, in order,
// and the terminal notification fires exactly once.
type Callback interface {
	TransitionStage(Stage)
}

// CallbackFunc adapts a function to the Callback interface.
type CallbackFunc func(Stage)

func (f CallbackFunc) TransitionStage(s Stage) { f(s) }

// Flow is a multi-step login procedure producing a session.
type Flow interface {
	// Name identifies the flow variant for logs.
	Name() string

	// Stage is the most recently entered stage.
	Stage() Stage

	// Cancel requests cooperative cancellation. The cancellation flag is
	// consulted at every step boundary; a network call already in flight
	// is allowed to finish but its result is discarded.
	Cancel()

	// Session resolves exactly once: with a candidate session on
	// success, or with an error on failure or cancellation.
	Session() *future.Future[session.Session]

	// Done is closed once the flow goroutine has exited and every
	// registered cleanup has run. The terminal stage notification and
	// the futures settle before Done closes.
	Done() <-chan struct{}

	// Profile resolves with a reusable identity for flow variants that
	// produce one; ok is false for variants that do not.
	Profile() (*future.Future[profiles.Profile], bool)
}

// step is one unit of flow progress: enter the stage, then run the work.
type step struct {
	stage Stage
	run   func(ctx context.Context) error
}

// runner is the engine shared by all flow variants. Variants supply the
// ordered step list and a finish function building the final session.
type runner struct {
	name   string
	cb     Callback
	logger *slog.Logger

	ctx      context.Context
	cancelFn context.CancelFunc

	cancelled atomic.Bool

	mu    sync.Mutex
	stage Stage

	sessionF *future.Future[session.Session]
	profileF *future.Future[profiles.Profile]
	profiled bool

	cleanups []func()
	done     chan struct{}
}

func newRunner(name string, cb Callback, logger *slog.Logger, withProfile bool) *runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{
		name:     name,
		cb:       cb,
		logger:   logger.With("flow", name),
		ctx:      ctx,
		cancelFn: cancel,
		stage:    StageInitial,
		sessionF: future.New[session.Session](),
		profiled: withProfile,
		done:     make(chan struct{}),
	}
	if withProfile {
		r.profileF = future.New[profiles.Profile]()
	}
	return r
}

func (r *runner) Name() string { return r.name }

func (r *runner) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

func (r *runner) Session() *future.Future[session.Session] { return r.sessionF }

func (r *runner) Profile() (*future.Future[profiles.Profile], bool) {
	return r.profileF, r.profiled
}

func (r *runner) Done() <-chan struct{} { return r.done }

func (r *runner) Cancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		r.logger.Info("cancellation requested")
		r.cancelFn()
	}
}

// onExit registers cleanup that runs when the flow goroutine ends,
// regardless of outcome. Used for callback listener teardown and for
// zeroing transient credentials.
func (r *runner) onExit(f func()) {
	r.cleanups = append(r.cleanups, f)
}

// start launches the flow goroutine. finish builds the final session and
// optional profile after all steps succeeded.
func (r *runner) start(steps []step, finish func() (session.Session, profiles.Profile)) {
	go func() {
		// Deferred in this order so done closes only after the cleanups
		// have run.
		defer close(r.done)
		defer func() {
			for i := len(r.cleanups) - 1; i >= 0; i-- {
				r.cleanups[i]()
			}
		}()

		for _, s := range steps {
			if r.cancelled.Load() {
				r.terminate(StageCancelled, ErrCancelled)
				return
			}

			r.transition(s.stage)

			if err := s.run(r.ctx); err != nil {
				// A call aborted by cancellation is not a failure.
				if r.cancelled.Load() || errors.Is(err, context.Canceled) {
					r.terminate(StageCancelled, ErrCancelled)
					return
				}
				r.logger.Error("flow step failed", "stage", s.stage.String(), "error", err)
				r.terminate(StageFailed, err)
				return
			}

			// The step's network call may have completed after a cancel
			// request; discard its result and stop.
			if r.cancelled.Load() {
				r.terminate(StageCancelled, ErrCancelled)
				return
			}
		}

		sess, prof := finish()
		r.transition(StageFinished)
		r.sessionF.Complete(sess)
		if r.profiled {
			r.profileF.Complete(prof)
		}
		r.logger.Info("flow finished", "username", sess.Username)
	}()
}

func (r *runner) transition(next Stage) {
	r.mu.Lock()
	r.stage = next
	r.mu.Unlock()

	r.logger.Debug("stage transition", "stage", next.String())
	if r.cb != nil {
		r.cb.TransitionStage(next)
	}
}

func (r *runner) terminate(terminal Stage, err error) {
	r.transition(terminal)
	r.sessionF.Fail(err)
	if r.profiled {
		r.profileF.Fail(err)
	}
}
