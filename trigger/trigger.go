// Package trigger 单次触发(延时/定时/条件)与等间隔定时触发.
//
// 每次触发都在独立的执行单元中完成: 等待策略(Schedule)决定何时触发,
// Action 提供 BeforeTrigger/Trigger/OnError 三个钩子, 回调的错误和panic只会交给 OnError.
package trigger

import (
	"context"

	"github.com/fixkme/chrono/clock"
	"github.com/fixkme/chrono/errs"
	g "github.com/fixkme/chrono/framework/go"
	"github.com/fixkme/chrono/instant"
	"github.com/fixkme/chrono/mlog"
)

// Action 触发器能力接口
type Action[R any] interface {
	// BeforeTrigger 返回false时跳过本次触发, 执行单元正常结束
	BeforeTrigger(ctx context.Context, target instant.Instant) (bool, error)
	Trigger(ctx context.Context, target instant.Instant) (R, error)
	OnError(err error)
}

// Funcs 用函数拼装 Action, Before为空时总是允许触发, Error为空时写mlog
type Funcs[R any] struct {
	Before func(ctx context.Context, target instant.Instant) (bool, error)
	Fire   func(ctx context.Context, target instant.Instant) (R, error)
	Error  func(err error)
}

func (f Funcs[R]) BeforeTrigger(ctx context.Context, target instant.Instant) (bool, error) {
	if f.Before == nil {
		return true, nil
	}
	return f.Before(ctx, target)
}

func (f Funcs[R]) Trigger(ctx context.Context, target instant.Instant) (R, error) {
	if f.Fire == nil {
		var zero R
		return zero, nil
	}
	return f.Fire(ctx, target)
}

func (f Funcs[R]) OnError(err error) {
	if f.Error == nil {
		defaultErrorHandler(err)
		return
	}
	f.Error(err)
}

func defaultErrorHandler(err error) {
	mlog.Errorf("trigger error: %v", err)
}

// Event 交给用户回调的触发事件
type Event[T any] struct {
	ID     string          // 触发器或定时序列ID
	Target instant.Instant // 计划触发时刻
	Data   T               // 附加数据
}

// Handler 用户回调
type Handler[T any] interface {
	Trigger(ctx context.Context, ev Event[T]) error
}

type HandlerFunc[T any] func(ctx context.Context, ev Event[T]) error

func (f HandlerFunc[T]) Trigger(ctx context.Context, ev Event[T]) error {
	return f(ctx, ev)
}

type handlerAction[T any] struct {
	h       Handler[T]
	ev      Event[T]
	onError func(error)
}

// Bind 把 Handler 和一次具体的事件绑定成 Action, ev.Target 保持为计划时刻
func Bind[T any](h Handler[T], ev Event[T], onError func(error)) Action[struct{}] {
	if onError == nil {
		onError = defaultErrorHandler
	}
	return handlerAction[T]{h: h, ev: ev, onError: onError}
}

func (a handlerAction[T]) BeforeTrigger(context.Context, instant.Instant) (bool, error) {
	return true, nil
}

func (a handlerAction[T]) Trigger(ctx context.Context, _ instant.Instant) (struct{}, error) {
	return struct{}{}, a.h.Trigger(ctx, a.ev)
}

func (a handlerAction[T]) OnError(err error) {
	a.onError(err)
}

type options struct {
	waiter  *clock.Waiter
	spawner g.Spawner
	onError func(error)
}

type Option func(*options)

func WithWaiter(w *clock.Waiter) Option {
	return func(o *options) {
		if w != nil {
			o.waiter = w
		}
	}
}

func WithSpawner(s g.Spawner) Option {
	return func(o *options) {
		if s != nil {
			o.spawner = s
		}
	}
}

// WithErrorHandler 回调错误处理, 用于 Periodic 及 Delay/DelayUntil 便捷函数
func WithErrorHandler(f func(error)) Option {
	return func(o *options) {
		if f != nil {
			o.onError = f
		}
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.waiter == nil {
		o.waiter = clock.Default()
	}
	if o.spawner == nil {
		o.spawner = g.Default()
	}
	if o.onError == nil {
		o.onError = defaultErrorHandler
	}
	return o
}

// Delay 启动一个delayMs毫秒后触发的执行单元
func Delay(delayMs int64, fn func(ctx context.Context, target instant.Instant) error, opts ...Option) (*Worker[struct{}], error) {
	if delayMs < 0 {
		return nil, errs.InvalidArgument.Printf("negative delay %d", delayMs)
	}
	return startFunc(After(delayMs), fn, opts)
}

// DelayUntil 启动一个在at时刻触发的执行单元
func DelayUntil(at instant.Instant, fn func(ctx context.Context, target instant.Instant) error, opts ...Option) (*Worker[struct{}], error) {
	return startFunc(At(at), fn, opts)
}

func startFunc(s Schedule, fn func(ctx context.Context, target instant.Instant) error, opts []Option) (*Worker[struct{}], error) {
	o := buildOptions(opts)
	w := NewWorker[struct{}](s, Funcs[struct{}]{
		Fire: func(ctx context.Context, target instant.Instant) (struct{}, error) {
			return struct{}{}, fn(ctx, target)
		},
		Error: o.onError,
	}, opts...)
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// Every 便捷函数, 创建并启动等间隔触发器
func Every(intervalMs int64, fn func(ctx context.Context, ev Event[struct{}]) error, opts ...Option) (*Periodic[struct{}], error) {
	p, err := NewPeriodic[struct{}](intervalMs, HandlerFunc[struct{}](fn), struct{}{}, opts...)
	if err != nil {
		return nil, err
	}
	if err = p.Start(); err != nil {
		return nil, err
	}
	return p, nil
}
