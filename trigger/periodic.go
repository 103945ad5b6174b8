package trigger

import (
	"context"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/fixkme/chrono/errs"
	"github.com/fixkme/chrono/instant"
	"github.com/fixkme/chrono/loop"
)

// Periodic 等间隔定时触发.
// 下一次时刻 = 上一次计划时刻 + interval, 与回调执行耗时无关, 没有累积误差.
// 每次触发都交给新的 Worker 执行, 回调超过间隔时允许重叠执行
type Periodic[T any] struct {
	id       string
	interval int64
	handler  Handler[T]
	data     T
	opts     []Option
	o        *options

	loop  *loop.Loop
	next  atomic.Int64
	fires atomic.Int64
}

func NewPeriodic[T any](intervalMs int64, h Handler[T], data T, opts ...Option) (*Periodic[T], error) {
	if intervalMs <= 0 {
		return nil, errs.InvalidArgument.Printf("interval must be positive, got %d", intervalMs)
	}
	if h == nil {
		return nil, errs.InvalidArgument.Print("nil handler")
	}
	p := &Periodic[T]{
		id:       xid.New().String(),
		interval: intervalMs,
		handler:  h,
		data:     data,
		opts:     opts,
		o:        buildOptions(opts),
	}
	// 循环独占协程, spawner只用于每次触发
	p.loop = loop.NewSimple(periodicBody[T]{p},
		loop.WithName("periodic-"+p.id),
		loop.WithErrorHandler(p.o.onError),
	)
	return p, nil
}

func (p *Periodic[T]) ID() string {
	return p.id
}

func (p *Periodic[T]) Interval() int64 {
	return p.interval
}

func (p *Periodic[T]) Start() error {
	return p.loop.Start()
}

func (p *Periodic[T]) Name() string {
	return p.loop.Name()
}

// RequestStop 幂等, 已派发的回调不受影响
func (p *Periodic[T]) RequestStop() {
	p.loop.RequestStop()
}

func (p *Periodic[T]) Stop() {
	p.loop.RequestStop()
}

func (p *Periodic[T]) Join() {
	p.loop.Join()
}

func (p *Periodic[T]) Wait(ctx context.Context) error {
	return p.loop.Wait(ctx)
}

func (p *Periodic[T]) Done() <-chan struct{} {
	return p.loop.Done()
}

// Fires 已派发的触发次数
func (p *Periodic[T]) Fires() int64 {
	return p.fires.Load()
}

// Next 最近一次计划触发时刻
func (p *Periodic[T]) Next() instant.Instant {
	return instant.FromMillis(p.next.Load())
}

func (p *Periodic[T]) fire(at instant.Instant) {
	ev := Event[T]{ID: p.id, Target: at, Data: p.data}
	w := NewWorker[struct{}](Immediately(), Bind[T](p.handler, ev, p.o.onError), p.opts...)
	if err := w.Start(); err != nil {
		p.o.onError(err)
		return
	}
	p.fires.Add(1)
}

type periodicBody[T any] struct {
	p *Periodic[T]
}

func (b periodicBody[T]) Setup(ctx context.Context) error {
	now := b.p.o.waiter.Now()
	b.p.next.Store(now.Millis())
	b.p.fire(now)
	return nil
}

func (b periodicBody[T]) Perform(ctx context.Context) error {
	next := instant.FromMillis(b.p.next.Load()).Offset(b.p.interval)
	b.p.next.Store(next.Millis())
	if err := b.p.o.waiter.WaitUntil(ctx, next); err != nil {
		return err
	}
	b.p.fire(next)
	return nil
}

func (b periodicBody[T]) Teardown(ctx context.Context) error {
	return nil
}
