// Package timeline 单协程调度任意数量的定时回调.
//
// 调度循环只做簿记: 每轮把截止时刻落在 now+PreOffset 之内的条目出堆,
// 交给独立的 trigger.Worker 精确等待到各自的截止时刻再触发.
package timeline

import (
	"context"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/rs/xid"

	"github.com/fixkme/chrono/clock"
	"github.com/fixkme/chrono/errs"
	g "github.com/fixkme/chrono/framework/go"
	"github.com/fixkme/chrono/instant"
	"github.com/fixkme/chrono/loop"
	"github.com/fixkme/chrono/mlog"
	"github.com/fixkme/chrono/trigger"
)

const (
	DefaultPreOffset = 25               // ms
	DefaultPause     = time.Millisecond // 每轮之间的间歇
)

// Codec 调度器内部保存K, 回调收到T
type Codec[T, K any] interface {
	Pack(h trigger.Handler[T], data T) K
	Unpack(k K) T
}

// AfterFirer 可选, Codec实现后每次回调结束都会收到已触发的条目
type AfterFirer[T, K any] interface {
	AfterFire(s *Scheduler[T, K], f Fired[T, K])
}

// Fired 已触发的条目
type Fired[T, K any] struct {
	ID       string
	Deadline instant.Instant
	Handler  trigger.Handler[T]
	Packed   K
}

type entry[T, K any] struct {
	id        string
	deadline  instant.Instant
	seq       uint64
	handler   trigger.Handler[T]
	packed    K
	cancelled bool
}

func compareEntry[T, K any](a, b interface{}) int {
	ea, eb := a.(*entry[T, K]), b.(*entry[T, K])
	if c := ea.deadline.Compare(eb.deadline); c != 0 {
		return c
	}
	switch {
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	}
	return 0
}

type options struct {
	name      string
	waiter    *clock.Waiter
	preOffset int64
	pause     time.Duration
	spawner   g.Spawner
	onError   func(error)
}

type Option func(*options)

func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func WithWaiter(w *clock.Waiter) Option {
	return func(o *options) {
		if w != nil {
			o.waiter = w
		}
	}
}

// WithClock 用src构造默认参数的Waiter
func WithClock(src clock.Source) Option {
	return func(o *options) {
		if src != nil {
			o.waiter = clock.NewWaiter(src)
		}
	}
}

// WithPreOffset 提前出堆的时间窗口(ms), 过小会增加轮询开销
func WithPreOffset(ms int64) Option {
	return func(o *options) {
		if ms >= 0 {
			o.preOffset = ms
		}
	}
}

func WithPause(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pause = d
		}
	}
}

// WithSpawner 只用于每个条目的触发单元, 调度循环自身总是独占一个协程
func WithSpawner(s g.Spawner) Option {
	return func(o *options) {
		if s != nil {
			o.spawner = s
		}
	}
}

func WithErrorHandler(f func(error)) Option {
	return func(o *options) {
		if f != nil {
			o.onError = f
		}
	}
}

// Scheduler 最小堆按(截止时刻, 插入序号)排序, 堆和索引由同一把锁保护
type Scheduler[T, K any] struct {
	codec Codec[T, K]
	after AfterFirer[T, K]
	o     options

	mu   sync.Mutex
	heap *binaryheap.Heap
	byID map[string]*entry[T, K]
	// 已出堆但还在等待截止时刻的触发单元
	inflight map[string]*trigger.Worker[struct{}]
	seq      uint64

	loop *loop.Loop
}

func NewScheduler[T, K any](codec Codec[T, K], opts ...Option) *Scheduler[T, K] {
	o := options{
		name:      "timeline-" + xid.New().String(),
		preOffset: DefaultPreOffset,
		pause:     DefaultPause,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.waiter == nil {
		o.waiter = clock.Default()
	}
	if o.spawner == nil {
		o.spawner = g.Default()
	}
	if o.onError == nil {
		name := o.name
		o.onError = func(err error) {
			mlog.Errorf("%s callback error: %v", name, err)
		}
	}
	s := &Scheduler[T, K]{
		codec: codec,
		o:     o,
		heap:  binaryheap.NewWith(compareEntry[T, K]),
		byID:  make(map[string]*entry[T, K]),

		inflight: make(map[string]*trigger.Worker[struct{}]),
	}
	s.after, _ = codec.(AfterFirer[T, K])
	// 调度循环不占用有界协程池的槽位, 否则派发会阻塞在池上
	s.loop = loop.New(schedulerBody[T, K]{s},
		loop.WithName(o.name),
		loop.WithErrorHandler(o.onError),
	)
	return s
}

func (s *Scheduler[T, K]) Name() string {
	return s.o.name
}

func (s *Scheduler[T, K]) Waiter() *clock.Waiter {
	return s.o.waiter
}

func (s *Scheduler[T, K]) Start() error {
	return s.loop.Start()
}

// Schedule 在deadline触发h, 返回条目ID
func (s *Scheduler[T, K]) Schedule(deadline instant.Instant, h trigger.Handler[T], data T) (string, error) {
	if h == nil {
		return "", errs.InvalidArgument.Print("nil handler")
	}
	return s.push("", deadline, h, s.codec.Pack(h, data))
}

// ScheduleAfter 相对当前时刻deltaMs毫秒后触发
func (s *Scheduler[T, K]) ScheduleAfter(deltaMs int64, h trigger.Handler[T], data T) (string, error) {
	return s.Schedule(s.o.waiter.Now().Offset(deltaMs), h, data)
}

// push id为空时生成新ID, 同ID的旧条目被替换
func (s *Scheduler[T, K]) push(id string, deadline instant.Instant, h trigger.Handler[T], k K) (string, error) {
	if s.loop.Stopping() {
		return "", errs.Stopped.Print(s.o.name)
	}
	if id == "" {
		id = xid.New().String()
	}
	s.mu.Lock()
	if old, ok := s.byID[id]; ok {
		old.cancelled = true
	}
	s.seq++
	e := &entry[T, K]{id: id, deadline: deadline, seq: s.seq, handler: h, packed: k}
	s.heap.Push(e)
	s.byID[id] = e
	s.mu.Unlock()
	s.loop.Notify()
	return id, nil
}

// Cancel 取消尚未触发的条目, 包括已出堆还在等待截止时刻的. 回调已开始执行的不受影响
func (s *Scheduler[T, K]) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		e.cancelled = true
		delete(s.byID, id)
		return true
	}
	if w, ok := s.inflight[id]; ok {
		w.Cancel()
		delete(s.inflight, id)
		return true
	}
	return false
}

// Clear 清空所有尚未触发的条目, 返回后不会再有回调开始执行
func (s *Scheduler[T, K]) Clear() {
	s.mu.Lock()
	s.heap.Clear()
	s.byID = make(map[string]*entry[T, K])
	for _, w := range s.inflight {
		w.Cancel()
	}
	s.inflight = make(map[string]*trigger.Worker[struct{}])
	s.mu.Unlock()
	s.loop.Notify()
}

// Len 尚未触发且未取消的条目数
func (s *Scheduler[T, K]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID) + len(s.inflight)
}

// claim 触发前从inflight摘除, 已被Cancel/Clear摘除的放弃触发
func (s *Scheduler[T, K]) claim(id string, w *trigger.Worker[struct{}]) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] != w {
		return false
	}
	delete(s.inflight, id)
	return true
}

// Stop 请求停止并唤醒调度循环, 已派发的回调照常触发
func (s *Scheduler[T, K]) Stop() {
	s.loop.RequestStop()
}

func (s *Scheduler[T, K]) Stopping() bool {
	return s.loop.Stopping()
}

func (s *Scheduler[T, K]) Join() {
	s.loop.Join()
}

func (s *Scheduler[T, K]) Wait(ctx context.Context) error {
	return s.loop.Wait(ctx)
}

func (s *Scheduler[T, K]) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Scheduler[T, K]) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.Empty()
}

// due 弹出所有截止时刻不晚于lookahead的条目, 顺带丢弃已取消的
func (s *Scheduler[T, K]) due(lookahead instant.Instant) []*entry[T, K] {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entry[T, K]
	for {
		v, ok := s.heap.Peek()
		if !ok {
			break
		}
		e := v.(*entry[T, K])
		if e.cancelled {
			s.heap.Pop()
			continue
		}
		if e.deadline.After(lookahead) {
			break
		}
		s.heap.Pop()
		delete(s.byID, e.id)
		out = append(out, e)
	}
	return out
}

func (s *Scheduler[T, K]) dispatch(e *entry[T, K]) {
	var w *trigger.Worker[struct{}]
	action := trigger.Funcs[struct{}]{
		Before: func(context.Context, instant.Instant) (bool, error) {
			return s.claim(e.id, w), nil
		},
		Fire: func(ctx context.Context, target instant.Instant) (struct{}, error) {
			if s.after != nil {
				defer s.after.AfterFire(s, Fired[T, K]{ID: e.id, Deadline: e.deadline, Handler: e.handler, Packed: e.packed})
			}
			ev := trigger.Event[T]{ID: e.id, Target: e.deadline, Data: s.codec.Unpack(e.packed)}
			return struct{}{}, e.handler.Trigger(ctx, ev)
		},
		Error: s.o.onError,
	}
	w = trigger.NewWorker[struct{}](trigger.At(e.deadline), action,
		trigger.WithWaiter(s.o.waiter),
		trigger.WithSpawner(s.o.spawner),
	)
	s.mu.Lock()
	s.inflight[e.id] = w
	s.mu.Unlock()
	if err := w.Start(); err != nil {
		s.claim(e.id, w)
		s.o.onError(err)
		return
	}
	mlog.Debugf("%s dispatch %s at %s", s.o.name, e.id, e.deadline)
}

type schedulerBody[T, K any] struct {
	s *Scheduler[T, K]
}

func (b schedulerBody[T, K]) Setup(context.Context) error {
	return nil
}

func (b schedulerBody[T, K]) ShouldContinue() bool {
	return true
}

// ShouldRunImmediately 堆为空时阻塞到有新条目或停止
func (b schedulerBody[T, K]) ShouldRunImmediately() bool {
	return !b.s.empty()
}

func (b schedulerBody[T, K]) Perform(ctx context.Context) error {
	s := b.s
	lookahead := s.o.waiter.Now().Offset(s.o.preOffset)
	for _, e := range s.due(lookahead) {
		s.dispatch(e)
	}
	return s.o.waiter.Source().Sleep(ctx, s.o.pause)
}

func (b schedulerBody[T, K]) Teardown(context.Context) error {
	return nil
}
