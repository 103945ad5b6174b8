package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixkme/chrono/errs"
	"github.com/fixkme/chrono/loop"
	"github.com/fixkme/chrono/timeline"
	"github.com/fixkme/chrono/trigger"
)

type journal struct {
	mu   sync.Mutex
	logs []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	j.logs = append(j.logs, s)
	j.mu.Unlock()
}

func (j *journal) get() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.logs...)
}

func (j *journal) module(name string, startErr error) Module {
	return Func(name,
		func() error { j.add("start " + name); return startErr },
		func() { j.add("stop " + name) },
		func() {},
	)
}

func TestRunStopOrder(t *testing.T) {
	j := &journal{}
	app := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Run(ctx, j.module("a", nil), j.module("b", nil))
	}()

	require.Eventually(t, func() bool { return app.GetState() == AppStateRun }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("app did not stop")
	}
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, j.get())
	assert.Equal(t, int32(AppStateNone), app.GetState())
}

func TestStartFailure(t *testing.T) {
	j := &journal{}
	app := New()
	boom := errors.New("boom")
	err := app.Start(j.module("a", nil), j.module("b", boom), j.module("c", nil))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, j.get())
}

func TestStartTwice(t *testing.T) {
	app := New()
	require.NoError(t, app.Start())
	assert.True(t, errors.Is(app.Start(), errs.AlreadyStarted))
	app.stop()
}

func TestHostSchedulers(t *testing.T) {
	tl := timeline.New[int]()
	rep := timeline.NewRepeater[int]()
	p, err := trigger.NewPeriodic[int](20, trigger.HandlerFunc[int](func(context.Context, trigger.Event[int]) error {
		return nil
	}), 0)
	require.NoError(t, err)
	l := loop.NewSimple(loop.Funcs{OnPerform: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	app := New()
	done := make(chan error, 1)
	go func() {
		done <- app.Run(context.Background(), tl, rep, p, Func(l.Name(), l.Start, l.RequestStop, l.Join))
	}()
	require.Eventually(t, func() bool { return app.GetState() == AppStateRun }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return p.Fires() > 1 }, time.Second, time.Millisecond)

	app.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
	assert.True(t, tl.Stopping())
	assert.True(t, rep.Stopping())
	assert.Equal(t, loop.StateStopped, l.State())
}
