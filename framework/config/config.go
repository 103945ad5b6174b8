package config

import (
	"context"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/fixkme/chrono/clock"
	"github.com/fixkme/chrono/errs"
	g "github.com/fixkme/chrono/framework/go"
	"github.com/fixkme/chrono/instant"
	"github.com/fixkme/chrono/mlog"
	"github.com/fixkme/chrono/timeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var Config *AppConfig

type AppConfig struct {
	PrecisionConfig `json:",inline" mapstructure:",inline"`
	TimelineConfig  `json:",inline" mapstructure:",inline"`
	WorkerConfig    `json:",inline" mapstructure:",inline"`
	ClockConfig     `json:",inline" mapstructure:",inline"`
	LogConfig       `json:",inline" mapstructure:",inline"`
}

type PrecisionConfig struct {
	SafetyMarginMs int64 `json:"safety_margin_ms" mapstructure:"safety_margin_ms"` //粗睡眠提前量 毫秒
	SpinStepUs     int64 `json:"spin_step_us" mapstructure:"spin_step_us"`         //自旋阶段每步睡眠 微秒
}

type TimelineConfig struct {
	PreOffsetMs int64 `json:"pre_offset_ms" mapstructure:"pre_offset_ms"` //提前出堆窗口 毫秒, 不要低于15
	PauseMs     int64 `json:"pause_ms" mapstructure:"pause_ms"`           //每轮间歇 毫秒
}

type WorkerConfig struct {
	WorkerPoolSize    int  `json:"worker_pool_size" mapstructure:"worker_pool_size"`     //0为每个任务一个协程, <0为不限大小的协程池
	WorkerNonblocking bool `json:"worker_nonblocking" mapstructure:"worker_nonblocking"` //协程池满时直接返回错误
}

type ClockConfig struct {
	ClockMode      string `json:"clock_mode" mapstructure:"clock_mode"`           //wall 或 monotonic
	ClockOffsetMs  int64  `json:"clock_offset_ms" mapstructure:"clock_offset_ms"` //墙上时钟偏移 毫秒
	TimezoneOffset int    `json:"timezone_offset" mapstructure:"timezone_offset"` //时区偏移 秒
}

type LogConfig struct {
	LogPath       string `json:"log_path" mapstructure:"log_path"`
	LogName       string `json:"log_name" mapstructure:"log_name"`
	LogLevel      int    `json:"log_level" mapstructure:"log_level"`
	LogStdOut     bool   `json:"log_std_out" mapstructure:"log_std_out"`
	LogMaxSizeMB  int    `json:"log_max_size_mb" mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups" mapstructure:"log_max_backups"`
}

const (
	ClockWall      = "wall"
	ClockMonotonic = "monotonic"
)

func Default() *AppConfig {
	return &AppConfig{
		PrecisionConfig: PrecisionConfig{
			SafetyMarginMs: clock.DefaultSafetyMargin.Milliseconds(),
			SpinStepUs:     clock.DefaultSpinStep.Microseconds(),
		},
		TimelineConfig: TimelineConfig{
			PreOffsetMs: timeline.DefaultPreOffset,
			PauseMs:     timeline.DefaultPause.Milliseconds(),
		},
		ClockConfig: ClockConfig{ClockMode: ClockWall},
		LogConfig:   LogConfig{LogLevel: int(mlog.InfoLevel)},
	}
}

// LoadConfig 默认值 < 配置文件 < 环境变量
func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	conf := Default()
	if len(configFile) != 0 {
		if err := loadConfigFromFile(configFile, conf); err != nil {
			return err
		}
	}
	if loadConfigFromEnv != nil {
		if err := loadConfigFromEnv(conf); err != nil {
			return err
		}
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	Config = conf
	return nil
}

func loadConfigFromFile(configFile string, conf *AppConfig) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	if err = json.Unmarshal(data, conf); err != nil {
		return errs.Config.Wrap(err)
	}
	return nil
}

func (conf *AppConfig) Validate() error {
	switch {
	case conf.SafetyMarginMs < 0:
		return errs.Config.Printf("safety_margin_ms %d", conf.SafetyMarginMs)
	case conf.SpinStepUs <= 0:
		return errs.Config.Printf("spin_step_us %d", conf.SpinStepUs)
	case conf.PreOffsetMs < 0:
		return errs.Config.Printf("pre_offset_ms %d", conf.PreOffsetMs)
	case conf.PauseMs <= 0:
		return errs.Config.Printf("pause_ms %d", conf.PauseMs)
	case conf.ClockMode != ClockWall && conf.ClockMode != ClockMonotonic:
		return errs.Config.Printf("clock_mode %q", conf.ClockMode)
	case conf.LogLevel < int(mlog.FatalLevel) || conf.LogLevel > int(mlog.TraceLevel):
		return errs.Config.Printf("log_level %d", conf.LogLevel)
	}
	return nil
}

func (conf *AppConfig) Source() clock.Source {
	if conf.ClockMode == ClockMonotonic {
		return clock.Monotonic()
	}
	return clock.Wall(time.Duration(conf.ClockOffsetMs) * time.Millisecond)
}

func (conf *AppConfig) Waiter() *clock.Waiter {
	return clock.NewWaiter(conf.Source(),
		clock.WithSafetyMargin(time.Duration(conf.SafetyMarginMs)*time.Millisecond),
		clock.WithSpinStep(time.Duration(conf.SpinStepUs)*time.Microsecond),
	)
}

// Spawner WorkerPoolSize为0时每个任务一个协程
func (conf *AppConfig) Spawner() (g.Spawner, error) {
	if conf.WorkerPoolSize == 0 {
		return g.NewGoSpawner(), nil
	}
	pool, err := g.NewPoolSpawner(conf.WorkerPoolSize, conf.WorkerNonblocking, nil)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

func (conf *AppConfig) TimelineOptions() ([]timeline.Option, error) {
	spawner, err := conf.Spawner()
	if err != nil {
		return nil, err
	}
	return []timeline.Option{
		timeline.WithWaiter(conf.Waiter()),
		timeline.WithPreOffset(conf.PreOffsetMs),
		timeline.WithPause(time.Duration(conf.PauseMs) * time.Millisecond),
		timeline.WithSpawner(spawner),
	}, nil
}

// Location TimezoneOffset为0时使用本地时区
func (conf *AppConfig) Location() *time.Location {
	if conf.TimezoneOffset == 0 {
		return time.Local
	}
	return time.FixedZone("", conf.TimezoneOffset)
}

func (conf *AppConfig) LogOptions() mlog.Options {
	return mlog.Options{
		Path:       conf.LogPath,
		Name:       conf.LogName,
		Level:      mlog.Level(conf.LogLevel),
		StdOut:     conf.LogStdOut,
		MaxSizeMB:  conf.LogMaxSizeMB,
		MaxBackups: conf.LogMaxBackups,
	}
}

// Apply 安装日志, 设置时区和默认等待器. 未配置日志路径时输出到标准输出
func (conf *AppConfig) Apply(ctx context.Context, wg *sync.WaitGroup) error {
	if len(conf.LogPath) != 0 || len(conf.LogName) != 0 {
		if err := mlog.UseZapLogger(ctx, wg, conf.LogOptions()); err != nil {
			return err
		}
	} else if err := mlog.UseStdLogger(mlog.Level(conf.LogLevel)); err != nil {
		return err
	}
	instant.SetLocation(conf.Location())
	clock.SetDefault(conf.Waiter())
	return nil
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}
