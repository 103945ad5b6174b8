// Package loop 后台轮询协程: Setup -> (ShouldContinue? [阻塞等待唤醒] Perform) ... -> Teardown.
// 停止是协作式的, RequestStop 翻转标记, 取消 Perform 的 ctx 并唤醒阻塞中的等待.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
	"go.uber.org/multierr"

	"github.com/fixkme/chrono/errs"
	g "github.com/fixkme/chrono/framework/go"
	"github.com/fixkme/chrono/mlog"
)

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Body 循环体
type Body interface {
	// Setup 第一次迭代前执行一次
	Setup(ctx context.Context) error
	// ShouldContinue 每次迭代前检查, false则退出循环
	ShouldContinue() bool
	// ShouldRunImmediately false时先阻塞到 Notify 或停止再执行 Perform
	ShouldRunImmediately() bool
	Perform(ctx context.Context) error
	// Teardown 循环退出后执行一次, Setup/Perform出错也会执行
	Teardown(ctx context.Context) error
}

type Loop struct {
	body    Body
	name    string
	spawner g.Spawner
	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}

	state    atomic.Int32
	started  atomic.Bool
	stopping atomic.Bool

	mu  sync.Mutex
	err error
}

type Option func(*Loop)

func WithName(name string) Option {
	return func(l *Loop) {
		if name != "" {
			l.name = name
		}
	}
}

// WithErrorHandler Perform/Setup/Teardown 的错误和panic都交给它, 默认写mlog
func WithErrorHandler(f func(error)) Option {
	return func(l *Loop) {
		if f != nil {
			l.onError = f
		}
	}
}

func WithSpawner(s g.Spawner) Option {
	return func(l *Loop) {
		if s != nil {
			l.spawner = s
		}
	}
}

func New(body Body, opts ...Option) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		body:    body,
		name:    "loop-" + xid.New().String(),
		spawner: g.Default(),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	l.onError = func(err error) {
		mlog.Errorf("%s: %v", l.name, err)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

// Start 只能调用一次. 启动前已RequestStop时仍执行一次Setup/Teardown, 不进入Perform
func (l *Loop) Start() error {
	if !l.started.CompareAndSwap(false, true) {
		return errs.AlreadyStarted.Print(l.name)
	}
	next := StateRunning
	if l.stopping.Load() {
		next = StateStopping
	}
	l.state.CompareAndSwap(int32(StateCreated), int32(next))
	if l.stopping.Load() {
		l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	}
	if err := l.spawner.Spawn(l.run); err != nil {
		l.state.Store(int32(StateStopped))
		l.cancel()
		close(l.done)
		return err
	}
	return nil
}

// Notify 唤醒阻塞中的循环, 未阻塞时保留一次唤醒
func (l *Loop) Notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RequestStop 幂等, 可在任意协程调用. 未Start的循环状态保持Created, Join会等到Start之后
func (l *Loop) RequestStop() {
	if !l.stopping.CompareAndSwap(false, true) {
		return
	}
	l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	l.cancel()
	l.Notify()
}

// Stopping 是否已请求停止
func (l *Loop) Stopping() bool {
	return l.stopping.Load()
}

func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Join 阻塞到循环完全退出
func (l *Loop) Join() {
	<-l.done
}

// Wait 带超时的Join
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return errs.Interrupted.Wrap(ctx.Err())
	}
}

// Err Setup/Teardown 的错误
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Loop) run() {
	defer close(l.done)
	defer l.state.Store(int32(StateStopped))
	ctx := l.ctx

	if err := l.call(func() error { return l.body.Setup(ctx) }); err != nil {
		l.fail(err)
	} else {
		l.circulate(ctx)
	}

	l.state.Store(int32(StateStopping))
	if err := l.call(func() error { return l.body.Teardown(ctx) }); err != nil {
		l.fail(err)
	}
	l.cancel()
}

func (l *Loop) circulate(ctx context.Context) {
	for !l.stopping.Load() && l.shouldContinue() {
		if !l.body.ShouldRunImmediately() {
			select {
			case <-l.wake:
			case <-ctx.Done():
			}
			if l.stopping.Load() {
				return
			}
		}
		if err := l.call(func() error { return l.body.Perform(ctx) }); err != nil {
			if l.stopping.Load() && (errors.Is(err, errs.Interrupted) || errors.Is(err, context.Canceled)) {
				return
			}
			l.onError(err)
		}
	}
}

func (l *Loop) shouldContinue() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			l.onError(g.PanicError(r))
			ok = false
		}
	}()
	return l.body.ShouldContinue()
}

func (l *Loop) call(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = g.PanicError(r)
		}
	}()
	return f()
}

func (l *Loop) fail(err error) {
	l.mu.Lock()
	l.err = multierr.Append(l.err, err)
	l.mu.Unlock()
	l.onError(err)
}
