package expiremap

import (
	"context"

	"github.com/fixkme/chrono/mlog"
	"github.com/fixkme/chrono/trigger"
)

// AutoPurge 每intervalMs毫秒清扫一次到期条目, 返回的Periodic由调用方停止.
// 不开启时到期条目只在访问时回收
func (m *Map[K, V]) AutoPurge(intervalMs int64, opts ...trigger.Option) (*trigger.Periodic[struct{}], error) {
	h := trigger.HandlerFunc[struct{}](func(ctx context.Context, ev trigger.Event[struct{}]) error {
		if n := m.Purge(); n > 0 {
			mlog.Debugf("expiremap purge %d entries at %s", n, ev.Target)
		}
		return nil
	})
	p, err := trigger.NewPeriodic[struct{}](intervalMs, h, struct{}{}, opts...)
	if err != nil {
		return nil, err
	}
	if err = p.Start(); err != nil {
		return nil, err
	}
	return p, nil
}
