package trigger

import (
	"context"
	"time"

	"github.com/fixkme/chrono/clock"
	"github.com/fixkme/chrono/instant"
)

// Schedule 等待策略, Await 阻塞到可以触发并返回计划触发时刻
type Schedule interface {
	Await(ctx context.Context, w *clock.Waiter) (instant.Instant, error)
}

type afterSchedule struct {
	ms int64
}

// After 相对延时, 普通sleep
func After(ms int64) Schedule {
	return afterSchedule{ms: ms}
}

func (s afterSchedule) Await(ctx context.Context, w *clock.Waiter) (instant.Instant, error) {
	target := w.Now().Offset(s.ms)
	return target, w.Sleep(ctx, s.ms)
}

type atSchedule struct {
	at instant.Instant
}

// At 绝对时刻, 高精度等待
func At(t instant.Instant) Schedule {
	return atSchedule{at: t}
}

func (s atSchedule) Await(ctx context.Context, w *clock.Waiter) (instant.Instant, error) {
	return s.at, w.WaitUntil(ctx, s.at)
}

type immediately struct{}

// Immediately 不等待, 立即触发
func Immediately() Schedule {
	return immediately{}
}

func (immediately) Await(ctx context.Context, w *clock.Waiter) (instant.Instant, error) {
	return w.Now(), nil
}

type whenSchedule struct {
	check func() bool
	poll  time.Duration
}

// When 轮询check直到返回true, poll<=0时为1ms. check应尽量轻量
func When(check func() bool, poll time.Duration) Schedule {
	return whenSchedule{check: check, poll: poll}
}

func (s whenSchedule) Await(ctx context.Context, w *clock.Waiter) (instant.Instant, error) {
	if err := w.WaitCondition(ctx, s.check, s.poll); err != nil {
		return instant.Instant{}, err
	}
	return w.Now(), nil
}
