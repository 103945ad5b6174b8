package clock

import (
	"context"
	"time"

	"github.com/fixkme/chrono/errs"
	"github.com/fixkme/chrono/instant"
)

const (
	DefaultSafetyMargin = 50 * time.Millisecond  // 粗等待后留给自旋的余量, 不建议低于20ms
	DefaultSpinStep     = 100 * time.Microsecond // 自旋阶段每次休眠时长
	DefaultPollStep     = time.Millisecond       // 条件等待轮询间隔
)

// Waiter 高精度等待: 先一次粗粒度休眠到目标前SafetyMargin, 再以SpinStep小步休眠直到目标时刻.
// 误差不到1ms, 自旋的cpu开销受SafetyMargin限制
type Waiter struct {
	src          Source
	safetyMargin time.Duration
	spinStep     time.Duration
}

type WaiterOption func(*Waiter)

func WithSafetyMargin(d time.Duration) WaiterOption {
	return func(w *Waiter) {
		if d >= 0 {
			w.safetyMargin = d
		}
	}
}

func WithSpinStep(d time.Duration) WaiterOption {
	return func(w *Waiter) {
		if d > 0 {
			w.spinStep = d
		}
	}
}

func NewWaiter(src Source, opts ...WaiterOption) *Waiter {
	if src == nil {
		src = Wall(0)
	}
	w := &Waiter{
		src:          src,
		safetyMargin: DefaultSafetyMargin,
		spinStep:     DefaultSpinStep,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Waiter) Source() Source {
	return w.src
}

func (w *Waiter) Now() instant.Instant {
	return w.src.Now()
}

// WaitUntil 阻塞到now >= target, 已过期立即返回. ctx取消时返回errs.Interrupted
func (w *Waiter) WaitUntil(ctx context.Context, target instant.Instant) error {
	now := w.src.Now()
	if !now.Before(target) {
		return nil
	}
	coarse := target.Sub(now) - w.safetyMargin
	if coarse > 0 {
		if err := w.src.Sleep(ctx, coarse); err != nil {
			return err
		}
	}
	for w.src.Now().Before(target) {
		if err := w.src.Sleep(ctx, w.spinStep); err != nil {
			return err
		}
	}
	return nil
}

// Sleep 普通相对休眠ms毫秒
func (w *Waiter) Sleep(ctx context.Context, ms int64) error {
	if ms < 0 {
		return errs.InvalidArgument.Printf("negative delay %d", ms)
	}
	return w.src.Sleep(ctx, time.Duration(ms)*time.Millisecond)
}

// WaitCondition 每隔poll检查一次check, 直到返回true
func (w *Waiter) WaitCondition(ctx context.Context, check func() bool, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollStep
	}
	for !check() {
		if err := w.src.Sleep(ctx, poll); err != nil {
			return err
		}
	}
	return nil
}
