// Package frame runs a dataverse Context on its own goroutine, ticking it
// once per frame.
//
// A Context is not safe for concurrent use, so every mutation, tap and read
// of the graph it observes must happen on the loop goroutine. Other
// goroutines hand work to the loop with Dispatch or Do.
package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/vango-dev/dataverse/pkg/dataverse"
)

var (
	// ErrLoopClosed is returned when work is handed to a loop that stopped.
	ErrLoopClosed = errors.New("frame: loop closed")

	// ErrLoopRunning is returned when Run is called on a running loop.
	ErrLoopRunning = errors.New("frame: loop already running")

	// ErrDispatchFull is returned when the dispatch queue is full.
	ErrDispatchFull = errors.New("frame: dispatch queue full")
)

const (
	// DefaultFPS is the default frame rate.
	DefaultFPS = 60

	// MaxFPS is the highest accepted frame rate.
	MaxFPS = 1000

	// DefaultDispatchBuffer is the default dispatch queue size.
	DefaultDispatchBuffer = 256
)

// Config configures a Loop.
type Config struct {
	// FPS is the number of frames per second (default: 60).
	FPS int

	// DispatchBuffer is the size of the dispatch queue (default: 256).
	DispatchBuffer int

	// Logger receives tick failures and dispatch panics.
	Logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Config)

// WithFPS sets the frame rate.
func WithFPS(fps int) Option {
	return func(c *Config) {
		c.FPS = fps
	}
}

// WithDispatchBuffer sets the dispatch queue size.
func WithDispatchBuffer(n int) Option {
	return func(c *Config) {
		c.DispatchBuffer = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// Stats are the loop counters.
type Stats struct {
	Frames     uint64
	Ticks      uint64
	TickErrors uint64
	Dispatched uint64
	Dropped    uint64
	Panics     uint64
	FPS        int
	Seq        uint64
	Hot        int
}

// Loop owns a dataverse Context and ticks it at a fixed frame rate.
//
// Frames with nothing pending skip the tick. Tick errors are logged and
// counted; they never stop the loop.
type Loop struct {
	dv     *dataverse.Context
	logger *slog.Logger

	dispatchCh chan func(*dataverse.Context)
	fpsCh      chan struct{}
	tickCh     chan chan error
	done       chan struct{}

	running atomic.Bool
	closed  atomic.Bool
	fps     atomic.Int64

	frames     atomic.Uint64
	ticks      atomic.Uint64
	tickErrors atomic.Uint64
	dispatched atomic.Uint64
	dropped    atomic.Uint64
	panics     atomic.Uint64
	seq        atomic.Uint64
	hot        atomic.Int64
}

// New creates a loop driving dv. dv must not be used outside the loop once
// Run is called.
func New(dv *dataverse.Context, opts ...Option) *Loop {
	config := Config{
		FPS:            DefaultFPS,
		DispatchBuffer: DefaultDispatchBuffer,
		Logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.FPS <= 0 || config.FPS > MaxFPS {
		config.FPS = DefaultFPS
	}
	if config.DispatchBuffer <= 0 {
		config.DispatchBuffer = DefaultDispatchBuffer
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	l := &Loop{
		dv:         dv,
		logger:     config.Logger.With("component", "frame", "context", dv.Name()),
		dispatchCh: make(chan func(*dataverse.Context), config.DispatchBuffer),
		fpsCh:      make(chan struct{}, 1),
		tickCh:     make(chan chan error),
		done:       make(chan struct{}),
	}
	l.fps.Store(int64(config.FPS))
	return l
}

// Run processes dispatched work and ticks every frame until ctx is done.
// It returns nil when ctx ends; a loop cannot be restarted.
func (l *Loop) Run(ctx context.Context) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer func() {
		l.closed.Store(true)
		close(l.done)
	}()

	ticker := time.NewTicker(frameInterval(int(l.fps.Load())))
	defer ticker.Stop()

	l.logger.Debug("frame loop started", "fps", l.fps.Load())
	for {
		select {
		case fn := <-l.dispatchCh:
			l.execute(fn)

		case <-l.fpsCh:
			ticker.Reset(frameInterval(int(l.fps.Load())))

		case reply := <-l.tickCh:
			reply <- l.tick()

		case <-ticker.C:
			l.frames.Add(1)
			if l.dv.Pending() > 0 {
				_ = l.tick()
			}

		case <-ctx.Done():
			l.logger.Debug("frame loop stopped", "frames", l.frames.Load())
			return nil
		}
	}
}

// Dispatch queues fn to run on the loop goroutine. It never blocks: when the
// queue is full fn is dropped and ErrDispatchFull returned.
func (l *Loop) Dispatch(fn func(*dataverse.Context)) error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	select {
	case l.dispatchCh <- fn:
		return nil
	case <-l.done:
		return ErrLoopClosed
	default:
		l.dropped.Add(1)
		l.logger.Warn("dispatch queue full, discarding callback")
		return ErrDispatchFull
	}
}

// Do runs fn on the loop goroutine and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func(*dataverse.Context)) error {
	finished := make(chan struct{})
	wrapped := func(c *dataverse.Context) {
		defer close(finished)
		fn(c)
	}

	select {
	case l.dispatchCh <- wrapped:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TickNow runs a tick on the loop goroutine immediately, whether or not
// anything is pending, and returns its error.
func (l *Loop) TickNow(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case l.tickCh <- reply:
	case <-l.done:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetFPS changes the frame rate. It takes effect at the next frame.
func (l *Loop) SetFPS(fps int) error {
	if fps <= 0 || fps > MaxFPS {
		return fmt.Errorf("frame: fps %d out of range [1, %d]", fps, MaxFPS)
	}
	if l.fps.Swap(int64(fps)) == int64(fps) {
		return nil
	}
	select {
	case l.fpsCh <- struct{}{}:
	default:
	}
	return nil
}

// FPS returns the current frame rate.
func (l *Loop) FPS() int {
	return int(l.fps.Load())
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:     l.frames.Load(),
		Ticks:      l.ticks.Load(),
		TickErrors: l.tickErrors.Load(),
		Dispatched: l.dispatched.Load(),
		Dropped:    l.dropped.Load(),
		Panics:     l.panics.Load(),
		FPS:        l.FPS(),
		Seq:        l.seq.Load(),
		Hot:        int(l.hot.Load()),
	}
}

// Done is closed when the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) tick() error {
	err := l.dv.Tick()
	l.ticks.Add(1)
	l.seq.Store(l.dv.Seq())
	l.hot.Store(int64(l.dv.HotCount()))
	if err != nil {
		l.tickErrors.Add(1)
		l.logger.Warn("tick failed", "seq", l.dv.Seq(), "error", err)
	}
	return err
}

// execute runs a dispatched function, recovering panics.
func (l *Loop) execute(fn func(*dataverse.Context)) {
	defer func() {
		if r := recover(); r != nil {
			l.panics.Add(1)
			l.logger.Error("dispatch panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	l.dispatched.Add(1)
	fn(l.dv)
}

func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}
