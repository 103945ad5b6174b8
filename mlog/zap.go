package mlog

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 文件日志配置
type Options struct {
	Path       string // 目录, 默认当前路径
	Name       string // 文件名(不含后缀), 默认mlog
	Level      Level
	StdOut     bool // 同时输出到标准输出
	MaxSizeMB  int  // 单文件大小上限, 默认100MB
	MaxBackups int
}

type zapLogger struct {
	sugar  *zap.SugaredLogger
	writer *lumberjack.Logger
	level  Level
}

func newZapLogger(opts Options) (*zapLogger, error) {
	if len(opts.Path) == 0 {
		opts.Path = "."
	}
	if len(opts.Name) == 0 {
		opts.Name = "mlog"
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}
	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, err
	}
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Path, opts.Name+".log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000000")
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)
	lv := zap.NewAtomicLevelAt(toZapLevel(opts.Level))

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.AddSync(writer), lv)}
	if opts.StdOut {
		cores = append(cores, zapcore.NewCore(enc, zapcore.Lock(os.Stdout), lv))
	}
	l := zap.New(zapcore.NewTee(cores...))
	return &zapLogger{sugar: l.Sugar(), writer: writer, level: opts.Level}, nil
}

// Start ctx结束后刷盘并关闭文件
func (z *zapLogger) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		_ = z.sugar.Sync()
		_ = z.writer.Close()
	}()
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case FatalLevel:
		return zapcore.FatalLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case NoticeLevel, InfoLevel:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

func (z *zapLogger) Trace(v ...any) {
	if z.level >= TraceLevel {
		z.sugar.Debug(v...)
	}
}

func (z *zapLogger) Tracef(format string, v ...any) {
	if z.level >= TraceLevel {
		z.sugar.Debugf(format, v...)
	}
}

func (z *zapLogger) Debug(v ...any)                  { z.sugar.Debug(v...) }
func (z *zapLogger) Debugf(format string, v ...any)  { z.sugar.Debugf(format, v...) }
func (z *zapLogger) Info(v ...any)                   { z.sugar.Info(v...) }
func (z *zapLogger) Infof(format string, v ...any)   { z.sugar.Infof(format, v...) }
func (z *zapLogger) Notice(v ...any)                 { z.sugar.Info(v...) }
func (z *zapLogger) Noticef(format string, v ...any) { z.sugar.Infof(format, v...) }
func (z *zapLogger) Warn(v ...any)                   { z.sugar.Warn(v...) }
func (z *zapLogger) Warnf(format string, v ...any)   { z.sugar.Warnf(format, v...) }
func (z *zapLogger) Error(v ...any)                  { z.sugar.Error(v...) }
func (z *zapLogger) Errorf(format string, v ...any)  { z.sugar.Errorf(format, v...) }
func (z *zapLogger) Fatal(v ...any)                  { z.sugar.Fatal(v...) }
func (z *zapLogger) Fatalf(format string, v ...any)  { z.sugar.Fatalf(format, v...) }
