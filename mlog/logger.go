package mlog

import (
	"context"
	"sync"
)

// Logger 日志接口, 未设置时所有包级函数都是空操作
type Logger interface {
	Trace(v ...any)
	Debug(v ...any)
	Info(v ...any)
	Notice(v ...any)
	Warn(v ...any)
	Error(v ...any)
	Fatal(v ...any)

	Tracef(format string, v ...any)
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Noticef(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
	Fatalf(format string, v ...any)
}

var (
	logger Logger
	mu     sync.RWMutex
)

func SetLogger(l Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func getLogger() Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	return l
}

// UseZapLogger 使用zap写滚动文件, ctx结束时刷盘并关闭文件
func UseZapLogger(ctx context.Context, wg *sync.WaitGroup, opts Options) error {
	l, err := newZapLogger(opts)
	if err != nil {
		return err
	}
	l.Start(ctx, wg)
	SetLogger(l)
	return nil
}

func UseStdLogger(level Level) error {
	l := newStdoutLogger(level)
	SetLogger(l)
	return nil
}

type Level uint32

const (
	FatalLevel Level = iota
	ErrorLevel
	WarnLevel
	NoticeLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

func Trace(a ...any) {
	if l := getLogger(); l != nil {
		l.Trace(a...)
	}
}

func Tracef(format string, a ...any) {
	if l := getLogger(); l != nil {
		l.Tracef(format, a...)
	}
}

func Debug(a ...any) {
	if l := getLogger(); l != nil {
		l.Debug(a...)
	}
}

func Debugf(format string, a ...any) {
	if l := getLogger(); l != nil {
		l.Debugf(format, a...)
	}
}

func Info(a ...any) {
	if l := getLogger(); l != nil {
		l.Info(a...)
	}
}

func Infof(format string, a ...any) {
	if l := getLogger(); l != nil {
		l.Infof(format, a...)
	}
}

func Notice(a ...any) {
	if l := getLogger(); l != nil {
		l.Notice(a...)
	}
}

func Noticef(format string, a ...any) {
	if l := getLogger(); l != nil {
		l.Noticef(format, a...)
	}
}

func Warn(a ...any) {
	if l := getLogger(); l != nil {
		l.Warn(a...)
	}
}

func Warnf(format string, a ...any) {
	if l := getLogger(); l != nil {
		l.Warnf(format, a...)
	}
}

func Error(a ...any) {
	if l := getLogger(); l != nil {
		l.Error(a...)
	}
}

func Errorf(format string, a ...any) {
	if l := getLogger(); l != nil {
		l.Errorf(format, a...)
	}
}

func Fatal(a ...any) {
	if l := getLogger(); l != nil {
		l.Fatal(a...)
	}
}

func Fatalf(format string, a ...any) {
	if l := getLogger(); l != nil {
		l.Fatalf(format, a...)
	}
}
