package trigger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/fixkme/chrono/clock"
	"github.com/fixkme/chrono/errs"
	g "github.com/fixkme/chrono/framework/go"
	"github.com/fixkme/chrono/instant"
)

// Worker 单次触发执行单元: 按 Schedule 等待, 经 BeforeTrigger 判定后调用一次 Trigger
type Worker[R any] struct {
	schedule Schedule
	action   Action[R]
	waiter   *clock.Waiter
	spawner  g.Spawner

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool

	mu        sync.Mutex
	target    instant.Instant
	result    R
	hasResult bool
	fired     bool
	err       error
}

func NewWorker[R any](s Schedule, a Action[R], opts ...Option) *Worker[R] {
	o := buildOptions(opts)
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker[R]{
		schedule: s,
		action:   a,
		waiter:   o.waiter,
		spawner:  o.spawner,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (w *Worker[R]) Start() error {
	if !w.started.CompareAndSwap(false, true) {
		return errs.AlreadyStarted
	}
	if err := w.spawner.Spawn(w.run); err != nil {
		w.finish(err)
		w.cancel()
		close(w.done)
		return err
	}
	return nil
}

// Cancel 中断等待, 未触发的回调不再触发
func (w *Worker[R]) Cancel() {
	w.cancel()
}

func (w *Worker[R]) Done() <-chan struct{} {
	return w.done
}

func (w *Worker[R]) Join() {
	<-w.done
}

func (w *Worker[R]) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return errs.Interrupted.Wrap(ctx.Err())
	}
}

// Result 触发结束后的返回值, 未触发或出错时ok为false
func (w *Worker[R]) Result() (res R, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result, w.hasResult
}

// Fired 回调是否被调用过
func (w *Worker[R]) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Target 计划触发时刻, 等待结束前为零值
func (w *Worker[R]) Target() instant.Instant {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.target
}

func (w *Worker[R]) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker[R]) run() {
	defer close(w.done)
	defer w.cancel()
	ctx := w.ctx

	target, err := w.schedule.Await(ctx, w.waiter)
	w.mu.Lock()
	w.target = target
	w.mu.Unlock()
	if err != nil {
		w.finish(err)
		if !isInterrupted(err) {
			w.report(err)
		}
		return
	}

	allow, err := w.before(ctx, target)
	if err != nil {
		w.finish(err)
		w.report(err)
		return
	}
	if !allow {
		return
	}
	if err = ctx.Err(); err != nil {
		w.finish(errs.Interrupted.Wrap(err))
		return
	}

	res, err := w.trigger(ctx, target)
	w.mu.Lock()
	w.fired = true
	if err == nil {
		w.result = res
		w.hasResult = true
	}
	w.mu.Unlock()
	if err != nil {
		w.finish(err)
		w.report(err)
	}
}

func (w *Worker[R]) before(ctx context.Context, target instant.Instant) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = g.PanicError(r)
		}
	}()
	return w.action.BeforeTrigger(ctx, target)
}

func (w *Worker[R]) trigger(ctx context.Context, target instant.Instant) (res R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = g.PanicError(r)
		}
	}()
	return w.action.Trigger(ctx, target)
}

// report 错误处理器本身的panic也不能逃出执行单元
func (w *Worker[R]) report(err error) {
	g.Exec(func() { w.action.OnError(err) }, nil)
}

func (w *Worker[R]) finish(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

func isInterrupted(err error) bool {
	return errors.Is(err, errs.Interrupted) || errors.Is(err, context.Canceled)
}
