package app

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/fixkme/chrono/errs"
	"github.com/fixkme/chrono/mlog"
)

// 全局状态
const (
	AppStateNone = iota // 未开始或已停止
	AppStateInit        // 正在启动
	AppStateRun         // 正在运行中
	AppStateStop        // 正在停止中
)

var defaultApp = New()

// Module 托管的定时组件, Timeline/Repeater/Periodic 都满足
type Module interface {
	Name() string
	Start() error
	Stop()
	Join()
}

type funcModule struct {
	name  string
	start func() error
	stop  func()
	join  func()
}

func (m funcModule) Name() string { return m.name }
func (m funcModule) Start() error { return m.start() }
func (m funcModule) Stop()        { m.stop() }
func (m funcModule) Join()        { m.join() }

// Func 用函数拼装Module, 例如托管一个loop.Loop
func Func(name string, start func() error, stop func(), join func()) Module {
	return funcModule{name: name, start: start, stop: stop, join: join}
}

func DefaultApp() *App {
	return defaultApp
}

// App 按注册顺序启动模块, 先进后出停止
type App struct {
	mu    sync.Mutex
	mods  []Module
	state atomic.Int32
	sig   chan os.Signal
}

func New() *App {
	return &App{sig: make(chan os.Signal, 1)}
}

func (app *App) GetState() int32 {
	return app.state.Load()
}

// Start 任一模块启动失败时停止已启动的模块并返回错误
func (app *App) Start(mods ...Module) error {
	if !app.state.CompareAndSwap(AppStateNone, AppStateInit) {
		return errs.AlreadyStarted.Print("app")
	}
	mlog.Info("app starting up")
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, m := range mods {
		if err := m.Start(); err != nil {
			mlog.Errorf("app start module %s error %v", m.Name(), err)
			app.stopLocked()
			return err
		}
		app.mods = append(app.mods, m)
	}
	app.state.Store(AppStateRun)
	mlog.Info("app started")
	return nil
}

// Run 启动后阻塞到收到SIGINT/SIGTERM, 调用Stop或ctx结束, 然后停止所有模块
func (app *App) Run(ctx context.Context, mods ...Module) error {
	if err := app.Start(mods...); err != nil {
		return err
	}
	signal.Notify(app.sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(app.sig)
	for running := true; running; {
		select {
		case sig := <-app.sig:
			mlog.Infof("app closing down (signal: %v)", sig)
			running = sig == syscall.SIGHUP
		case <-ctx.Done():
			mlog.Infof("app closing down (%v)", ctx.Err())
			running = false
		}
	}
	app.stop()
	return nil
}

func (app *App) Stop() {
	select {
	case app.sig <- syscall.SIGTERM:
	default:
	}
}

func (app *App) stop() {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.stopLocked()
}

func (app *App) stopLocked() {
	if app.GetState() == AppStateStop {
		return
	}
	mlog.Info("app stop begin")
	app.state.Store(AppStateStop)
	for i := len(app.mods) - 1; i >= 0; i-- {
		m := app.mods[i]
		mlog.Infof("app stop module %s", m.Name())
		destroy(m)
	}
	for _, m := range app.mods {
		m.Join()
	}
	app.mods = nil
	app.state.Store(AppStateNone)
	mlog.Info("app stopped")
}

func destroy(m Module) {
	defer func() {
		if r := recover(); r != nil {
			mlog.Errorf("%s module stop panic: %v\n%s", m.Name(), r, debug.Stack())
		}
	}()
	m.Stop()
}
