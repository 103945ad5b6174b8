package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixkme/chrono/errs"
)

type counter struct {
	setups    atomic.Int32
	performs  atomic.Int32
	teardowns atomic.Int32
}

func (c *counter) funcs() Funcs {
	return Funcs{
		OnSetup: func(ctx context.Context) error {
			c.setups.Add(1)
			return nil
		},
		OnPerform: func(ctx context.Context) error {
			c.performs.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		},
		OnTeardown: func(ctx context.Context) error {
			c.teardowns.Add(1)
			return nil
		},
	}
}

func joinWithin(t *testing.T, l *Loop, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, l.Wait(ctx), "loop did not stop in time")
}

func TestSimpleLoop(t *testing.T) {
	c := &counter{}
	l := NewSimple(c.funcs(), WithName("simple"))
	assert.Equal(t, StateCreated, l.State())
	require.NoError(t, l.Start())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateRunning, l.State())

	l.RequestStop()
	l.RequestStop()
	joinWithin(t, l, time.Second)
	l.RequestStop()

	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, int32(1), c.setups.Load())
	assert.Equal(t, int32(1), c.teardowns.Load())
	assert.Greater(t, c.performs.Load(), int32(5))
	assert.NoError(t, l.Err())
	assert.Equal(t, "simple", l.Name())
}

func TestStartTwice(t *testing.T) {
	l := NewSimple(Funcs{OnPerform: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	require.NoError(t, l.Start())
	err := l.Start()
	assert.True(t, errors.Is(err, errs.AlreadyStarted))
	l.RequestStop()
	joinWithin(t, l, time.Second)
}

func TestShouldContinueEnds(t *testing.T) {
	var n atomic.Int32
	var teardown atomic.Int32
	l := New(Funcs{
		Continue:   func() bool { return n.Load() < 3 },
		Immediate:  func() bool { return false },
		OnPerform:  func(ctx context.Context) error { n.Add(1); return nil },
		OnTeardown: func(ctx context.Context) error { teardown.Add(1); return nil },
	})
	require.NoError(t, l.Start())
	for i := 0; i < 3; i++ {
		l.Notify()
		time.Sleep(10 * time.Millisecond)
	}
	// 第三次Perform后ShouldContinue为false, 不需要再唤醒
	joinWithin(t, l, time.Second)
	assert.Equal(t, int32(3), n.Load())
	assert.Equal(t, int32(1), teardown.Load())
}

func TestStopWakesBlockedLoop(t *testing.T) {
	var performs atomic.Int32
	l := New(Funcs{
		Immediate: func() bool { return false },
		OnPerform: func(ctx context.Context) error { performs.Add(1); return nil },
	})
	require.NoError(t, l.Start())
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	l.RequestStop()
	joinWithin(t, l, time.Second)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int32(0), performs.Load())
}

func TestPerformErrorKeepsRunning(t *testing.T) {
	var mu sync.Mutex
	var got []error
	var n atomic.Int32
	boom := errors.New("boom")
	l := NewSimple(Funcs{
		OnPerform: func(ctx context.Context) error {
			switch n.Add(1) {
			case 1:
				return boom
			case 2:
				panic("perform panic")
			}
			time.Sleep(time.Millisecond)
			return nil
		},
	}, WithErrorHandler(func(err error) {
		mu.Lock()
		got = append(got, err)
		mu.Unlock()
	}))
	require.NoError(t, l.Start())
	time.Sleep(30 * time.Millisecond)
	l.RequestStop()
	joinWithin(t, l, time.Second)

	assert.Greater(t, n.Load(), int32(2))
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.ErrorIs(t, got[0], boom)
	assert.ErrorIs(t, got[1], errs.CallbackPanic)
}

func TestInterruptedPerformNotReported(t *testing.T) {
	var reported atomic.Int32
	l := NewSimple(Funcs{
		OnPerform: func(ctx context.Context) error {
			<-ctx.Done()
			return errs.Interrupted.Wrap(ctx.Err())
		},
	}, WithErrorHandler(func(error) { reported.Add(1) }))
	require.NoError(t, l.Start())
	time.Sleep(10 * time.Millisecond)
	l.RequestStop()
	joinWithin(t, l, time.Second)
	assert.Equal(t, int32(0), reported.Load())
}

func TestSetupFailureStillTearsDown(t *testing.T) {
	var teardown, perform atomic.Int32
	bad := errors.New("setup failed")
	l := NewSimple(Funcs{
		OnSetup:    func(ctx context.Context) error { return bad },
		OnPerform:  func(ctx context.Context) error { perform.Add(1); return nil },
		OnTeardown: func(ctx context.Context) error { teardown.Add(1); return errors.New("teardown failed") },
	}, WithErrorHandler(func(error) {}))
	require.NoError(t, l.Start())
	joinWithin(t, l, time.Second)
	assert.Equal(t, int32(0), perform.Load())
	assert.Equal(t, int32(1), teardown.Load())
	assert.ErrorIs(t, l.Err(), bad)
	assert.Contains(t, l.Err().Error(), "teardown failed")
}

func TestStopBeforeStart(t *testing.T) {
	c := &counter{}
	l := NewSimple(c.funcs())
	l.RequestStop()
	assert.Equal(t, StateCreated, l.State())
	require.NoError(t, l.Start())
	assert.NotEqual(t, StateRunning, l.State())
	joinWithin(t, l, time.Second)
	assert.Equal(t, StateStopped, l.State())
	assert.Equal(t, int32(0), c.performs.Load())
	assert.Equal(t, int32(1), c.teardowns.Load())
}

func TestWaitTimeout(t *testing.T) {
	l := NewSimple(Funcs{OnPerform: func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}})
	require.NoError(t, l.Start())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Wait(ctx), errs.Interrupted)
	l.RequestStop()
	l.Join()
}
