package timeline

import "github.com/fixkme/chrono/trigger"

type identity[T any] struct{}

func (identity[T]) Pack(_ trigger.Handler[T], data T) T { return data }
func (identity[T]) Unpack(data T) T                     { return data }

// Timeline 回调数据原样保存的调度器
type Timeline[T any] struct {
	*Scheduler[T, T]
}

func New[T any](opts ...Option) *Timeline[T] {
	return &Timeline[T]{NewScheduler[T, T](identity[T]{}, opts...)}
}
