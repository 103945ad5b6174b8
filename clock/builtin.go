package clock

import (
	"context"
	"sync"

	"github.com/fixkme/chrono/instant"
)

var (
	builtinWaiter *Waiter
	once          sync.Once
	mu            sync.RWMutex
)

// Default 包级默认Waiter, 首次使用时以系统时钟创建
func Default() *Waiter {
	once.Do(func() {
		mu.Lock()
		if builtinWaiter == nil {
			builtinWaiter = NewWaiter(Wall(0))
		}
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return builtinWaiter
}

func SetDefault(w *Waiter) {
	if w == nil {
		return
	}
	once.Do(func() {})
	mu.Lock()
	builtinWaiter = w
	mu.Unlock()
}

func Now() instant.Instant {
	return Default().Now()
}

func WaitUntil(ctx context.Context, target instant.Instant) error {
	return Default().WaitUntil(ctx, target)
}
