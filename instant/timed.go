package instant

// Timed 带截止时间的数据, Never为true表示永不到期
type Timed[T any] struct {
	At    Instant
	Never bool
	Value T
}

func At[T any](at Instant, v T) Timed[T] {
	return Timed[T]{At: at, Value: v}
}

func Forever[T any](v T) Timed[T] {
	return Timed[T]{Never: true, Value: v}
}

// Compare 按截止时间排序, 永不到期的排在所有有截止时间的之后, 两个永不到期的相等
func (e Timed[T]) Compare(o Timed[T]) int {
	switch {
	case e.Never && o.Never:
		return 0
	case e.Never:
		return 1
	case o.Never:
		return -1
	}
	return e.At.Compare(o.At)
}

// DueBy 在now时刻是否已到期
func (e Timed[T]) DueBy(now Instant) bool {
	return !e.Never && e.At.Compare(now) <= 0
}
