package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixkme/chrono/clock"
	"github.com/fixkme/chrono/errs"
	g "github.com/fixkme/chrono/framework/go"
	"github.com/fixkme/chrono/mlog"
	"github.com/fixkme/chrono/timeline"
	"github.com/fixkme/chrono/trigger"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "chrono.json")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func TestLoadConfig(t *testing.T) {
	file := writeFile(t, `{
		"spin_step_us": 200,
		"pre_offset_ms": 30,
		"worker_pool_size": 16,
		"clock_mode": "monotonic",
		"timezone_offset": 28800,
		"log_level": 5
	}`)
	err := LoadConfig(file, func(c *AppConfig) error {
		c.PauseMs = 2
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, Config)

	assert.Equal(t, int64(50), Config.SafetyMarginMs)
	assert.Equal(t, int64(200), Config.SpinStepUs)
	assert.Equal(t, int64(30), Config.PreOffsetMs)
	assert.Equal(t, int64(2), Config.PauseMs)
	assert.Equal(t, 16, Config.WorkerPoolSize)
	assert.Equal(t, ClockMonotonic, Config.ClockMode)
	assert.Equal(t, mlog.DebugLevel, Config.LogOptions().Level)

	_, offset := time.Unix(0, 0).In(Config.Location()).Zone()
	assert.Equal(t, 28800, offset)
	assert.Contains(t, Config.JsonFormat(), `"pre_offset_ms": 30`)
}

func TestLoadConfigDefaults(t *testing.T) {
	require.NoError(t, LoadConfig("", nil))
	assert.Equal(t, Default(), Config)
	assert.Equal(t, time.Local, Config.Location())
}

func TestLoadConfigInvalid(t *testing.T) {
	err := LoadConfig(writeFile(t, `{"clock_mode": "lunar"}`), nil)
	assert.True(t, errors.Is(err, errs.Config))

	err = LoadConfig(writeFile(t, `{"spin_step_us": 0}`), nil)
	assert.True(t, errors.Is(err, errs.Config))

	err = LoadConfig(writeFile(t, `{`), nil)
	assert.True(t, errors.Is(err, errs.Config))

	err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)

	envErr := errors.New("env")
	assert.ErrorIs(t, LoadConfig("", func(*AppConfig) error { return envErr }), envErr)
}

func TestSpawner(t *testing.T) {
	conf := Default()
	s, err := conf.Spawner()
	require.NoError(t, err)
	assert.IsType(t, &g.GoSpawner{}, s)

	conf.WorkerPoolSize = 4
	s, err = conf.Spawner()
	require.NoError(t, err)
	pool, ok := s.(*g.PoolSpawner)
	require.True(t, ok)
	pool.Release()
}

func TestWaiter(t *testing.T) {
	conf := Default()
	w := conf.Waiter()
	target := w.Now().Offset(50)
	require.NoError(t, w.WaitUntil(context.Background(), target))
	assert.False(t, w.Now().Before(target))
}

func TestTimelineOptions(t *testing.T) {
	conf := Default()
	conf.WorkerPoolSize = -1
	opts, err := conf.TimelineOptions()
	require.NoError(t, err)

	tl := timeline.New[int](opts...)
	require.NoError(t, tl.Start())
	defer func() {
		tl.Stop()
		tl.Join()
	}()

	done := make(chan int, 1)
	_, err = tl.ScheduleAfter(30, trigger.HandlerFunc[int](func(ctx context.Context, ev trigger.Event[int]) error {
		done <- ev.Data
		return nil
	}), 7)
	require.NoError(t, err)
	select {
	case v := <-done:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("timeline entry did not fire")
	}
}

func TestTimelineBoundedPool(t *testing.T) {
	for _, nonblocking := range []bool{false, true} {
		conf := Default()
		conf.WorkerPoolSize = 1
		conf.WorkerNonblocking = nonblocking
		opts, err := conf.TimelineOptions()
		require.NoError(t, err)

		var spawnErrs atomic.Int32
		opts = append(opts, timeline.WithErrorHandler(func(error) { spawnErrs.Add(1) }))
		tl := timeline.New[int](opts...)
		require.NoError(t, tl.Start())

		var fired atomic.Int32
		_, err = tl.ScheduleAfter(10, trigger.HandlerFunc[int](func(context.Context, trigger.Event[int]) error {
			fired.Add(1)
			return nil
		}), 0)
		require.NoError(t, err)
		require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond,
			"nonblocking=%v", nonblocking)
		assert.Equal(t, int32(0), spawnErrs.Load())

		tl.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		require.NoError(t, tl.Wait(ctx))
		cancel()
	}
}

func TestApply(t *testing.T) {
	prev := clock.Default()
	defer func() {
		clock.SetDefault(prev)
		mlog.SetLogger(nil)
	}()

	conf := Default()
	conf.LogPath = t.TempDir()
	conf.LogName = "apply"
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	require.NoError(t, conf.Apply(ctx, wg))
	assert.NotSame(t, prev, clock.Default())
	mlog.Infof("applied")

	cancel()
	wg.Wait()
	_, err := os.Stat(filepath.Join(conf.LogPath, "apply.log"))
	assert.NoError(t, err)
}
