package g

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixkme/chrono/errs"
)

func TestExecRecover(t *testing.T) {
	var got any
	Exec(func() { panic("boom") }, func(r any) { got = r })
	assert.Equal(t, "boom", got)
}

func TestPanicError(t *testing.T) {
	base := errors.New("inner")
	assert.True(t, errors.Is(PanicError(base), base))
	assert.True(t, errors.Is(PanicError("x"), errs.CallbackPanic))
}

func TestGoSpawner(t *testing.T) {
	s := NewGoSpawner()
	var n atomic.Int32
	wg := sync.WaitGroup{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, s.Spawn(func() {
			defer wg.Done()
			n.Add(1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), n.Load())
}

func TestPoolSpawnerNonblocking(t *testing.T) {
	s, err := NewPoolSpawner(1, true, nil)
	require.NoError(t, err)
	defer s.Release()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, s.Spawn(func() {
		close(started)
		<-release
	}))
	<-started
	err = s.Spawn(func() {})
	assert.True(t, errors.Is(err, errs.SpawnFailed))
	close(release)
}

func TestPoolSpawnerPanic(t *testing.T) {
	ch := make(chan any, 1)
	s, err := NewPoolSpawner(0, false, func(r any) { ch <- r })
	require.NoError(t, err)
	defer s.Release()
	require.NoError(t, s.Spawn(func() { panic("pool boom") }))
	select {
	case r := <-ch:
		assert.Equal(t, "pool boom", r)
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
}
