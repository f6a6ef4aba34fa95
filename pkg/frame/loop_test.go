package frame

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vango-dev/dataverse/pkg/dataverse"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startLoop(t *testing.T, opts ...Option) (*Loop, context.CancelFunc) {
	t.Helper()
	dv := dataverse.NewContext(dataverse.WithLogger(quietLogger()))
	l := New(dv, append([]Option{WithLogger(quietLogger())}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh)
	})
	return l, cancel
}

func TestLoopTicksDispatchedMutations(t *testing.T) {
	l, _ := startLoop(t, WithFPS(200))

	count := dataverse.NewBox(0)
	delivered := make(chan int, 10)
	require.NoError(t, l.Do(context.Background(), func(c *dataverse.Context) {
		count.Changes(c).Tap(func(v int) { delivered <- v })
	}))

	require.NoError(t, l.Dispatch(func(*dataverse.Context) {
		count.Set(1)
		count.Set(2)
	}))

	select {
	case v := <-delivered:
		assert.Equal(t, 2, v)
	case <-time.After(2 * time.Second):
		t.Fatal("mutation was not delivered by a frame")
	}

	// Work queued after the delivery runs once that tick has finished.
	require.NoError(t, l.Do(context.Background(), func(*dataverse.Context) {}))
	stats := l.Stats()
	assert.GreaterOrEqual(t, stats.Ticks, uint64(1))
	assert.Equal(t, 1, stats.Hot)
}

func TestLoopTickNow(t *testing.T) {
	// A low frame rate keeps frames from ticking before TickNow does.
	l, _ := startLoop(t, WithFPS(1))

	count := dataverse.NewBox(0)
	var got []int
	require.NoError(t, l.Do(context.Background(), func(c *dataverse.Context) {
		count.Changes(c).Tap(func(v int) { got = append(got, v) })
		count.Set(5)
	}))

	require.NoError(t, l.TickNow(context.Background()))

	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func(*dataverse.Context) {
		snapshot = append(snapshot, got...)
	}))
	assert.Equal(t, []int{5}, snapshot)
}

func TestLoopTickErrorsDoNotStopLoop(t *testing.T) {
	l, _ := startLoop(t, WithFPS(1))

	count := dataverse.NewBox(0)
	errBad := errors.New("bad")
	failing := dataverse.Map(count, func(n int) (int, error) {
		if n < 0 {
			return 0, errBad
		}
		return n, nil
	})
	require.NoError(t, l.Do(context.Background(), func(c *dataverse.Context) {
		failing.Changes(c).Tap(func(int) {})
		count.Set(-1)
	}))

	err := l.TickNow(context.Background())
	assert.ErrorIs(t, err, errBad)
	assert.Equal(t, uint64(1), l.Stats().TickErrors)

	require.NoError(t, l.Do(context.Background(), func(*dataverse.Context) { count.Set(1) }))
	assert.NoError(t, l.TickNow(context.Background()))
}

func TestLoopRecoversDispatchPanic(t *testing.T) {
	l, _ := startLoop(t)

	require.NoError(t, l.Do(context.Background(), func(*dataverse.Context) { panic("boom") }))
	require.NoError(t, l.Do(context.Background(), func(*dataverse.Context) {}))

	assert.Equal(t, uint64(1), l.Stats().Panics)
	assert.Equal(t, uint64(2), l.Stats().Dispatched)
}

func TestLoopDispatchFull(t *testing.T) {
	dv := dataverse.NewContext()
	l := New(dv, WithDispatchBuffer(1), WithLogger(quietLogger()))

	require.NoError(t, l.Dispatch(func(*dataverse.Context) {}))
	assert.ErrorIs(t, l.Dispatch(func(*dataverse.Context) {}), ErrDispatchFull)
	assert.Equal(t, uint64(1), l.Stats().Dropped)
}

func TestLoopClosed(t *testing.T) {
	dv := dataverse.NewContext()
	l := New(dv, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, l.Run(ctx))

	<-l.Done()
	assert.ErrorIs(t, l.Dispatch(func(*dataverse.Context) {}), ErrLoopClosed)
	assert.ErrorIs(t, l.Do(context.Background(), func(*dataverse.Context) {}), ErrLoopClosed)
	assert.ErrorIs(t, l.TickNow(context.Background()), ErrLoopClosed)
	assert.ErrorIs(t, l.Run(context.Background()), ErrLoopClosed)
}

func TestLoopRunTwice(t *testing.T) {
	l, _ := startLoop(t)

	require.NoError(t, l.Do(context.Background(), func(*dataverse.Context) {}))

	assert.ErrorIs(t, l.Run(context.Background()), ErrLoopRunning)
}

func TestSetFPS(t *testing.T) {
	l, _ := startLoop(t)

	require.NoError(t, l.SetFPS(30))
	assert.Equal(t, 30, l.FPS())
	assert.Equal(t, 30, l.Stats().FPS)

	assert.Error(t, l.SetFPS(0))
	assert.Error(t, l.SetFPS(MaxFPS+1))
	assert.Equal(t, 30, l.FPS())
}

func TestNewDefaults(t *testing.T) {
	l := New(dataverse.NewContext(), WithFPS(-5), WithDispatchBuffer(0))

	assert.Equal(t, DefaultFPS, l.FPS())
	assert.Equal(t, DefaultDispatchBuffer, cap(l.dispatchCh))
}
