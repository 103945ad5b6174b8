package clock

import (
	"context"
	"sync"
	"time"

	"github.com/fixkme/chrono/errs"
	"github.com/fixkme/chrono/instant"
)

// Source 时间源, 所有组件通过它读取当前时间和休眠
type Source interface {
	Now() instant.Instant
	Sleep(ctx context.Context, d time.Duration) error
}

// 短于该值的休眠直接time.Sleep, 不创建timer
const shortSleep = time.Millisecond

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errs.Interrupted.Wrap(err)
	}
	if d <= 0 {
		return nil
	}
	if d <= shortSleep {
		time.Sleep(d)
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errs.Interrupted.Wrap(ctx.Err())
	case <-t.C:
		return nil
	}
}

type wallClock struct {
	offset time.Duration
}

// Wall 系统时钟, offset为固定偏移(调试时快进时间用)
func Wall(offset time.Duration) Source {
	return wallClock{offset: offset}
}

func (c wallClock) Now() instant.Instant {
	now := time.Now()
	if c.offset != 0 {
		now = now.Add(c.offset)
	}
	return instant.FromTime(now)
}

func (c wallClock) Sleep(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}

type monotonicClock struct {
	anchor time.Time // 带单调时钟读数
	base   instant.Instant
}

// Monotonic 以创建时的系统时间为基准, 之后只按单调时钟前进, 不受系统时间调整影响
func Monotonic() Source {
	now := time.Now()
	return &monotonicClock{anchor: now, base: instant.FromTime(now)}
}

func (c *monotonicClock) Now() instant.Instant {
	return c.base.Add(time.Since(c.anchor))
}

func (c *monotonicClock) Sleep(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}

// Manual 手动时钟, Sleep直接把时间推进d而不阻塞, 用于确定性测试
type Manual struct {
	mu  sync.Mutex
	ns  int64
	hit int64
}

func NewManual(start instant.Instant) *Manual {
	return &Manual{ns: start.Millis() * int64(time.Millisecond)}
}

func (c *Manual) Now() instant.Instant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return instant.FromMillis(c.ns / int64(time.Millisecond))
}

func (c *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return errs.Interrupted.Wrap(err)
	}
	c.mu.Lock()
	c.hit++
	if d > 0 {
		c.ns += int64(d)
	}
	c.mu.Unlock()
	return nil
}

func (c *Manual) Set(t instant.Instant) {
	c.mu.Lock()
	c.ns = t.Millis() * int64(time.Millisecond)
	c.mu.Unlock()
}

func (c *Manual) Advance(d time.Duration) {
	c.mu.Lock()
	c.ns += int64(d)
	c.mu.Unlock()
}

// Sleeps Sleep被调用的次数
func (c *Manual) Sleeps() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hit
}
