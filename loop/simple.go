package loop

import "context"

// SimpleBody 不阻塞的循环体, 只能从外部 RequestStop 退出
type SimpleBody interface {
	Setup(ctx context.Context) error
	Perform(ctx context.Context) error
	Teardown(ctx context.Context) error
}

type simple struct {
	SimpleBody
}

func (simple) ShouldContinue() bool       { return true }
func (simple) ShouldRunImmediately() bool { return true }

func NewSimple(body SimpleBody, opts ...Option) *Loop {
	return New(simple{body}, opts...)
}

// Funcs 用函数拼装 Body, 未设置的钩子为空操作, Continue/Immediate 默认true
type Funcs struct {
	OnSetup    func(ctx context.Context) error
	OnPerform  func(ctx context.Context) error
	OnTeardown func(ctx context.Context) error
	Continue   func() bool
	Immediate  func() bool
}

var _ Body = Funcs{}

func (f Funcs) Setup(ctx context.Context) error {
	if f.OnSetup == nil {
		return nil
	}
	return f.OnSetup(ctx)
}

func (f Funcs) ShouldContinue() bool {
	return f.Continue == nil || f.Continue()
}

func (f Funcs) ShouldRunImmediately() bool {
	return f.Immediate == nil || f.Immediate()
}

func (f Funcs) Perform(ctx context.Context) error {
	if f.OnPerform == nil {
		return nil
	}
	return f.OnPerform(ctx)
}

func (f Funcs) Teardown(ctx context.Context) error {
	if f.OnTeardown == nil {
		return nil
	}
	return f.OnTeardown(ctx)
}
