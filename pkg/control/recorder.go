package control

import (
	"context"
	"errors"
	"sync"

	"github.com/ericogr/ads1115-sampler/pkg/sampler"
)

var (
	ErrAlreadyActive = errors.New("recording already active")
	ErrNotActive     = errors.New("no recording active")
)

// Session runs one recording until ctx is cancelled. filename, when not
// empty, redirects the file outputs of the session.
type Session func(ctx context.Context, filename string) error

// StatsSource is what a running session exposes to status reporting.
// *sampler.Scheduler implements it.
type StatsSource interface {
	Stats() sampler.Stats
	Degraded() bool
}

// Recorder runs at most one Session at a time.
type Recorder struct {
	session Session

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	src    StatsSource
	onExit func(error)
}

func NewRecorder(session Session) *Recorder {
	return &Recorder{session: session}
}

// OnExit registers fn to be called with the result of every session once it
// has returned. The recorder still reports the session as active while fn
// runs, so a Start issued from fn or concurrently with it is refused.
func (r *Recorder) OnExit(fn func(error)) {
	r.mu.Lock()
	r.onExit = fn
	r.mu.Unlock()
}

// Start launches a session in the background.
func (r *Recorder) Start(filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return ErrAlreadyActive
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel, r.done, r.err = cancel, done, nil

	go func() {
		err := r.session(ctx, filename)
		cancel()
		r.mu.Lock()
		onExit := r.onExit
		r.mu.Unlock()
		if onExit != nil {
			onExit(err)
		}
		r.mu.Lock()
		r.err = err
		r.cancel = nil
		r.src = nil
		r.mu.Unlock()
		close(done)
	}()
	return nil
}

// Attach registers the stats of the running session. Sessions call it once
// their scheduler exists; it is dropped when the session ends.
func (r *Recorder) Attach(src StatsSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.src = src
	}
}

// Source returns the stats of the running session, or nil.
func (r *Recorder) Source() StatsSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src
}

// Stop asks the running session to end. The session finishes its current
// round first; use Wait to block until it has.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return ErrNotActive
	}
	r.cancel()
	return nil
}

func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Wait blocks until the last started session has returned and its exit hook
// has run, and reports its error. It returns nil at once when no session was
// ever started.
func (r *Recorder) Wait() error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
