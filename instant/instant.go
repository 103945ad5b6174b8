// Package instant 毫秒精度的时间点
package instant

import (
	"strconv"
	"sync/atomic"
	"time"
)

const (
	SecMs  = 1000
	MinMs  = 60 * SecMs
	HourMs = 60 * MinMs
	DayMs  = 24 * HourMs
	WeekMs = 7 * DayMs
)

const TimeFormat = "2006-01-02 15:04:05.000"

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.Local)
}

// Location String()/Parse使用的时区
func Location() *time.Location {
	return location.Load()
}

// SetLocation 设置String()使用的时区
func SetLocation(loc *time.Location) {
	if loc != nil {
		location.Store(loc)
	}
}

// Instant 不可变时间点, unix毫秒时间戳. 零值为1970-01-01 00:00:00 UTC
type Instant struct {
	ms int64
}

func FromMillis(ms int64) Instant {
	return Instant{ms: ms}
}

func FromTime(t time.Time) Instant {
	return Instant{ms: t.UnixMilli()}
}

func (t Instant) Millis() int64 {
	return t.ms
}

func (t Instant) Time() time.Time {
	return time.UnixMilli(t.ms).In(location.Load())
}

// Offset 偏移delta毫秒, 可为负
func (t Instant) Offset(delta int64) Instant {
	return Instant{ms: t.ms + delta}
}

func (t Instant) Add(d time.Duration) Instant {
	return Instant{ms: t.ms + d.Milliseconds()}
}

// Sub 两个时间点的差
func (t Instant) Sub(o Instant) time.Duration {
	return time.Duration(t.ms-o.ms) * time.Millisecond
}

// AlignForward 向前对齐到unit的整数倍(向下取整)
func (t Instant) AlignForward(unit int64) Instant {
	if unit <= 0 {
		return t
	}
	r := t.ms % unit
	if r < 0 {
		r += unit
	}
	return Instant{ms: t.ms - r}
}

// AlignBackward 向后对齐到unit的整数倍(向上取整)
func (t Instant) AlignBackward(unit int64) Instant {
	if unit <= 0 {
		return t
	}
	r := t.ms % unit
	if r < 0 {
		r += unit
	}
	if r == 0 {
		return t
	}
	return Instant{ms: t.ms + unit - r}
}

func (t Instant) Compare(o Instant) int {
	switch {
	case t.ms < o.ms:
		return -1
	case t.ms > o.ms:
		return 1
	}
	return 0
}

func (t Instant) Before(o Instant) bool { return t.ms < o.ms }
func (t Instant) After(o Instant) bool  { return t.ms > o.ms }
func (t Instant) Equal(o Instant) bool  { return t.ms == o.ms }

func (t Instant) String() string {
	return t.Time().Format(TimeFormat)
}

// Parse 解析TimeFormat格式或毫秒时间戳字符串
func Parse(s string) (Instant, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return FromMillis(ms), nil
	}
	tm, err := time.ParseInLocation(TimeFormat, s, location.Load())
	if err != nil {
		return Instant{}, err
	}
	return FromTime(tm), nil
}

// Compare 比较两个时间点
func Compare(a, b Instant) int {
	return a.Compare(b)
}

// Min 较早的时间点
func Min(a, b Instant) Instant {
	if a.ms <= b.ms {
		return a
	}
	return b
}
