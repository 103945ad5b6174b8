package g

import (
	"fmt"
	"runtime/debug"

	"github.com/panjf2000/ants/v2"

	"github.com/fixkme/chrono/errs"
	"github.com/fixkme/chrono/mlog"
)

// Spawner 启动独立执行单元, 每次触发都交给它, 避免慢回调拖住调度
type Spawner interface {
	Spawn(task func()) error
}

type PanicHandler func(r any)

func defaultPanicHandler(r any) {
	mlog.Errorf("go run panic: %v\n%s", r, debug.Stack())
}

// Exec 执行cb并捕获panic
func Exec(cb func(), panicHandler PanicHandler) {
	defer func() {
		if r := recover(); r != nil {
			if panicHandler == nil {
				panicHandler = defaultPanicHandler
			}
			panicHandler(r)
		}
	}()
	cb()
}

// PanicError 把recover的值转为error
func PanicError(r any) error {
	if err, ok := r.(error); ok {
		return errs.CallbackPanic.Wrap(err)
	}
	return errs.CallbackPanic.Print(fmt.Sprint(r))
}

// GoSpawner 每个任务一个goroutine
type GoSpawner struct {
	panicHandler PanicHandler
}

func NewGoSpawner() *GoSpawner {
	return &GoSpawner{panicHandler: defaultPanicHandler}
}

func (s *GoSpawner) SetPanicHandler(f PanicHandler) {
	if f != nil {
		s.panicHandler = f
	}
}

func (s *GoSpawner) Spawn(task func()) error {
	go Exec(task, s.panicHandler)
	return nil
}

// PoolSpawner 基于ants协程池, size<=0为不限数量
type PoolSpawner struct {
	pool *ants.Pool
}

func NewPoolSpawner(size int, nonblocking bool, panicHandler PanicHandler) (*PoolSpawner, error) {
	if panicHandler == nil {
		panicHandler = defaultPanicHandler
	}
	if size <= 0 {
		size = -1
	}
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(nonblocking),
		ants.WithPanicHandler(func(r interface{}) { panicHandler(r) }),
	)
	if err != nil {
		return nil, errs.SpawnFailed.Wrap(err)
	}
	return &PoolSpawner{pool: pool}, nil
}

func (s *PoolSpawner) Spawn(task func()) error {
	if err := s.pool.Submit(task); err != nil {
		return errs.SpawnFailed.Wrap(err)
	}
	return nil
}

func (s *PoolSpawner) Running() int {
	return s.pool.Running()
}

func (s *PoolSpawner) Release() {
	s.pool.Release()
}

var defaultSpawner Spawner = NewGoSpawner()

// Default 未指定Spawner时使用, 每个任务一个goroutine
func Default() Spawner {
	return defaultSpawner
}
