package instant

import (
	"strconv"
	"time"
)

// zoneOffset t所在时区与零时区的偏移毫秒数
func (t Instant) zoneOffset() int64 {
	_, off := t.Time().Zone()
	return int64(off) * SecMs
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// DayStart 所在时区当天0点
func (t Instant) DayStart() Instant {
	return Instant{ms: t.ms - floorMod(t.ms+t.zoneOffset(), DayMs)}
}

// NextDayStart 下一个0点, 严格晚于t
func (t Instant) NextDayStart() Instant {
	return t.DayStart().Offset(DayMs)
}

// HourStart 当前整点
func (t Instant) HourStart() Instant {
	return Instant{ms: t.ms - floorMod(t.ms+t.zoneOffset(), HourMs)}
}

func (t Instant) Weekday() time.Weekday {
	return t.Time().Weekday()
}

// NextWeekStart 下一个周day的0点, 严格晚于t
func (t Instant) NextWeekStart(day time.Weekday) Instant {
	diff := int64(day-t.Weekday()) * DayMs
	next := t.DayStart().Offset(diff)
	if !next.After(t) {
		next = next.Offset(WeekMs)
	}
	return next
}

// DateValue 年月日整数, 如20231114
func (t Instant) DateValue() int64 {
	val, _ := strconv.ParseInt(t.Time().Format("20060102"), 10, 64)
	return val
}

// SameDay 是否在所在时区的同一天
func SameDay(a, b Instant) bool {
	return a.DayStart() == b.DayStart()
}

func SameHour(a, b Instant) bool {
	return a.HourStart() == b.HourStart()
}

// CrossedWeek 从before到after是否跨过了周day的0点
func CrossedWeek(before, after Instant, day time.Weekday) bool {
	return !after.Before(before.NextWeekStart(day))
}
