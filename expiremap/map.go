// Package expiremap 带过期时间的并发安全map.
//
// 到期的条目在访问时惰性删除: 单键操作只检查该键, 遍历类操作先从过期索引的最小端清扫.
// 永不过期的条目只在键索引中, 不进入按过期时间排序的红黑树.
// 传给Compute*/Merge/Range/ReplaceAll等的回调在map锁内执行, 不能再访问同一个map.
package expiremap

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/fixkme/chrono/clock"
	"github.com/fixkme/chrono/instant"
)

// Entry 键值及其过期时间
type Entry[K comparable, V any] struct {
	Key K
	instant.Timed[V]
}

type Option func(*config)

type config struct {
	src clock.Source
}

// WithClock 指定时钟, 默认为clock.Default()的时钟
func WithClock(src clock.Source) Option {
	return func(c *config) {
		if src != nil {
			c.src = src
		}
	}
}

type Map[K comparable, V any] struct {
	mu        sync.Mutex
	src       clock.Source
	data      map[K]instant.Timed[V]
	deadlines *redblacktree.Tree // expireAt => set[K]
}

func New[K comparable, V any](opts ...Option) *Map[K, V] {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.src == nil {
		c.src = clock.Default().Source()
	}
	return &Map[K, V]{
		src:       c.src,
		data:      make(map[K]instant.Timed[V]),
		deadlines: &redblacktree.Tree{Comparator: utils.Int64Comparator},
	}
}

func (m *Map[K, V]) now() instant.Instant {
	return m.src.Now()
}

// set 写入并维护过期索引, 调用方持锁
func (m *Map[K, V]) set(k K, e instant.Timed[V]) {
	if old, ok := m.data[k]; ok {
		m.unindex(k, old)
	}
	m.data[k] = e
	if e.Never {
		return
	}
	at := e.At.Millis()
	var set map[K]struct{}
	if val, ok := m.deadlines.Get(at); ok {
		set = val.(map[K]struct{})
	} else {
		set = make(map[K]struct{})
		m.deadlines.Put(at, set)
	}
	set[k] = struct{}{}
}

func (m *Map[K, V]) unindex(k K, e instant.Timed[V]) {
	if e.Never {
		return
	}
	at := e.At.Millis()
	if val, ok := m.deadlines.Get(at); ok {
		set := val.(map[K]struct{})
		delete(set, k)
		if len(set) == 0 {
			m.deadlines.Remove(at)
		}
	}
}

func (m *Map[K, V]) del(k K) (instant.Timed[V], bool) {
	e, ok := m.data[k]
	if !ok {
		return e, false
	}
	m.unindex(k, e)
	delete(m.data, k)
	return e, true
}

// lookup 单键检查, 已到期的先删除
func (m *Map[K, V]) lookup(k K) (instant.Timed[V], bool) {
	e, ok := m.data[k]
	if !ok {
		return e, false
	}
	if e.DueBy(m.now()) {
		m.del(k)
		return instant.Timed[V]{}, false
	}
	return e, true
}

// sweep 从最早的过期时间开始删除所有已到期的条目, 返回删除数量
func (m *Map[K, V]) sweep() int {
	if m.deadlines.Empty() {
		return 0
	}
	now := m.now().Millis()
	n := 0
	for {
		node := m.deadlines.Left()
		if node == nil || node.Key.(int64) > now {
			break
		}
		for k := range node.Value.(map[K]struct{}) {
			delete(m.data, k)
			n++
		}
		m.deadlines.Remove(node.Key)
	}
	return n
}

// Put 写入永不过期的条目, 返回之前未过期的值
func (m *Map[K, V]) Put(k K, v V) (V, bool) {
	return m.put(k, instant.Forever(v))
}

// PutTTL ttlMs毫秒后过期
func (m *Map[K, V]) PutTTL(k K, v V, ttlMs int64) (V, bool) {
	return m.put(k, instant.At(m.now().Offset(ttlMs), v))
}

// PutAt 在at时刻过期
func (m *Map[K, V]) PutAt(k K, v V, at instant.Instant) (V, bool) {
	return m.put(k, instant.At(at, v))
}

func (m *Map[K, V]) put(k K, e instant.Timed[V]) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.lookup(k)
	m.set(k, e)
	return old.Value, ok
}

// PutAll 批量写入永不过期的条目
func (m *Map[K, V]) PutAll(src map[K]V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range src {
		m.set(k, instant.Forever(v))
	}
}

func (m *Map[K, V]) Get(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	return e.Value, ok
}

func (m *Map[K, V]) GetOrDefault(k K, def V) V {
	if v, ok := m.Get(k); ok {
		return v
	}
	return def
}

func (m *Map[K, V]) ContainsKey(k K) bool {
	_, ok := m.Get(k)
	return ok
}

// PutIfAbsent 键不存在时写入永不过期的v, 存在时返回当前值和true
func (m *Map[K, V]) PutIfAbsent(k K, v V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.lookup(k); ok {
		return e.Value, true
	}
	m.set(k, instant.Forever(v))
	var zero V
	return zero, false
}

// Replace 键存在时替换值, 过期时间不变
func (m *Map[K, V]) Replace(k K, v V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok {
		return e.Value, false
	}
	old := e.Value
	e.Value = v
	m.data[k] = e
	return old, true
}

// ReplaceIf 当前值与old相等时替换为v
func (m *Map[K, V]) ReplaceIf(k K, old, v V, eq func(a, b V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok || !eq(e.Value, old) {
		return false
	}
	e.Value = v
	m.data[k] = e
	return true
}

func (m *Map[K, V]) Remove(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.del(k)
	if ok && e.DueBy(m.now()) {
		return e.Value, false
	}
	return e.Value, ok
}

// RemoveIf 当前值与v相等时删除
func (m *Map[K, V]) RemoveIf(k K, v V, eq func(a, b V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok || !eq(e.Value, v) {
		return false
	}
	m.del(k)
	return true
}

// Compute fn收到当前值, 返回keep为false时删除该键. 新建的键永不过期
func (m *Map[K, V]) Compute(k K, fn func(k K, old V, exists bool) (v V, keep bool)) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	v, keep := fn(k, e.Value, ok)
	return m.store(k, e, ok, v, keep)
}

func (m *Map[K, V]) ComputeIfAbsent(k K, fn func(k K) (v V, keep bool)) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.lookup(k); ok {
		return e.Value, true
	}
	v, keep := fn(k)
	return m.store(k, instant.Timed[V]{}, false, v, keep)
}

func (m *Map[K, V]) ComputeIfPresent(k K, fn func(k K, old V) (v V, keep bool)) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok {
		return e.Value, false
	}
	v, keep := fn(k, e.Value)
	return m.store(k, e, true, v, keep)
}

// Merge 键不存在时写入v, 存在时写入fn(old, v), fn返回keep为false时删除
func (m *Map[K, V]) Merge(k K, v V, fn func(old, v V) (V, bool)) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok {
		m.set(k, instant.Forever(v))
		return v, true
	}
	nv, keep := fn(e.Value, v)
	return m.store(k, e, true, nv, keep)
}

// store 替换值时沿用原过期时间
func (m *Map[K, V]) store(k K, e instant.Timed[V], exists bool, v V, keep bool) (V, bool) {
	if !keep {
		if exists {
			m.del(k)
		}
		var zero V
		return zero, false
	}
	if !exists {
		m.set(k, instant.Forever(v))
		return v, true
	}
	e.Value = v
	m.data[k] = e
	return v, true
}

// ExpireAt 过期时刻, never为true表示永不过期
func (m *Map[K, V]) ExpireAt(k K) (at instant.Instant, never bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	return e.At, e.Never, ok
}

// TTL 剩余毫秒数, 永不过期为-1
func (m *Map[K, V]) TTL(k K) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok {
		return 0, false
	}
	if e.Never {
		return -1, true
	}
	return e.At.Millis() - m.now().Millis(), true
}

// Expire 重设过期时间为ttlMs毫秒后
func (m *Map[K, V]) Expire(k K, ttlMs int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok {
		return false
	}
	m.set(k, instant.At(m.now().Offset(ttlMs), e.Value))
	return true
}

// Persist 改为永不过期
func (m *Map[K, V]) Persist(k K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(k)
	if !ok {
		return false
	}
	m.set(k, instant.Forever(e.Value))
	return true
}

func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	return len(m.data)
}

func (m *Map[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

func (m *Map[K, V]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	keys := make([]K, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys
}

func (m *Map[K, V]) Values() []V {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	vals := make([]V, 0, len(m.data))
	for _, e := range m.data {
		vals = append(vals, e.Value)
	}
	return vals
}

func (m *Map[K, V]) Entries() []Entry[K, V] {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	entries := make([]Entry[K, V], 0, len(m.data))
	for k, e := range m.data {
		entries = append(entries, Entry[K, V]{Key: k, Timed: e})
	}
	return entries
}

// Range fn返回false时停止遍历, 顺序不确定
func (m *Map[K, V]) Range(fn func(k K, v V) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	for k, e := range m.data {
		if !fn(k, e.Value) {
			return
		}
	}
}

// ReplaceAll 用fn的返回值替换所有值, 过期时间不变
func (m *Map[K, V]) ReplaceAll(fn func(k K, v V) V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	for k, e := range m.data {
		e.Value = fn(k, e.Value)
		m.data[k] = e
	}
}

func (m *Map[K, V]) ContainsValue(v V, eq func(a, b V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	for _, e := range m.data {
		if eq(e.Value, v) {
			return true
		}
	}
	return false
}

// Hash 与遍历顺序无关, 内容相同的两个map结果相同
func (m *Map[K, V]) Hash() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweep()
	var h uint64
	for k, e := range m.data {
		h += xxhash.Sum64String(fmt.Sprintf("%v=%v", k, e.Value))
	}
	return h
}

// String 形如{a=1, b=2}, 按渲染结果排序
func (m *Map[K, V]) String() string {
	m.mu.Lock()
	pairs := make([]string, 0, len(m.data))
	m.sweep()
	for k, e := range m.data {
		pairs = append(pairs, fmt.Sprintf("%v=%v", k, e.Value))
	}
	m.mu.Unlock()
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ", ") + "}"
}

// Purge 立即清扫所有到期条目, 返回删除数量
func (m *Map[K, V]) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweep()
}

func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[K]instant.Timed[V])
	m.deadlines.Clear()
}
