package timeline

import (
	"sync"

	"github.com/fixkme/chrono/errs"
	"github.com/fixkme/chrono/trigger"
)

type repeatInfo[T any] struct {
	data     T
	interval int64 // 0为一次性条目
}

type repeatCodec[T any] struct {
	r *Repeater[T]
}

func (c repeatCodec[T]) Pack(_ trigger.Handler[T], data T) repeatInfo[T] {
	return repeatInfo[T]{data: data}
}

func (c repeatCodec[T]) Unpack(k repeatInfo[T]) T {
	return k.data
}

// AfterFire 按上一次计划时刻+interval重新入堆, 每次都是独立的条目
func (c repeatCodec[T]) AfterFire(s *Scheduler[T, repeatInfo[T]], f Fired[T, repeatInfo[T]]) {
	if f.Packed.interval <= 0 || s.Stopping() {
		return
	}
	c.r.rearm(f)
}

// Repeater 每个序列按固定间隔反复入堆
type Repeater[T any] struct {
	*Scheduler[T, repeatInfo[T]]

	mu     sync.Mutex
	series map[string]struct{}
}

func NewRepeater[T any](opts ...Option) *Repeater[T] {
	r := &Repeater[T]{series: make(map[string]struct{})}
	r.Scheduler = NewScheduler[T, repeatInfo[T]](repeatCodec[T]{r: r}, opts...)
	return r
}

// Every 首次在now+interval触发, 返回序列ID, 之后每次触发共用该ID
func (r *Repeater[T]) Every(intervalMs int64, h trigger.Handler[T], data T) (string, error) {
	if intervalMs <= 0 {
		return "", errs.InvalidArgument.Printf("interval must be positive, got %d", intervalMs)
	}
	if h == nil {
		return "", errs.InvalidArgument.Print("nil handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	deadline := r.Waiter().Now().Offset(intervalMs)
	id, err := r.push("", deadline, h, repeatInfo[T]{data: data, interval: intervalMs})
	if err != nil {
		return "", err
	}
	r.series[id] = struct{}{}
	return id, nil
}

// Cancel 取消序列或一次性条目, 正在执行的回调结束后不再入堆
func (r *Repeater[T]) Cancel(id string) bool {
	ok := r.drop(id)
	queued := r.Scheduler.Cancel(id)
	return ok || queued
}

func (r *Repeater[T]) Clear() {
	r.mu.Lock()
	r.series = make(map[string]struct{})
	r.mu.Unlock()
	r.Scheduler.Clear()
}

// Series 活跃序列数
func (r *Repeater[T]) Series() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.series)
}

// rearm 持锁检查并入堆, 避免与Cancel交错后重新入堆
func (r *Repeater[T]) rearm(f Fired[T, repeatInfo[T]]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.series[f.ID]; !ok {
		return
	}
	if _, err := r.push(f.ID, f.Deadline.Offset(f.Packed.interval), f.Handler, f.Packed); err != nil {
		delete(r.series, f.ID)
	}
}

func (r *Repeater[T]) drop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.series[id]
	delete(r.series, id)
	return ok
}
