package instant

import (
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	for _, ms := range []int64{0, 1, -1, 1700000000123, math.MaxInt64, math.MinInt64} {
		assert.Equal(t, ms, FromMillis(ms).Millis())
	}
}

func TestOffsetCompare(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		a := FromMillis(r.Int63n(1 << 40))
		b := FromMillis(r.Int63n(1 << 40))
		d := r.Int63n(1<<20) - 1<<19
		want := FromMillis(a.Millis() + d).Compare(b)
		assert.Equal(t, want, a.Offset(d).Compare(b))
		assert.Equal(t, a.Compare(b), -b.Compare(a))
	}
	a := FromMillis(100)
	assert.True(t, a.Before(a.Offset(1)))
	assert.True(t, a.Offset(1).After(a))
	assert.True(t, a.Equal(FromMillis(100)))
	assert.Equal(t, 5*time.Millisecond, a.Offset(5).Sub(a))
}

func TestAlign(t *testing.T) {
	tm := FromMillis(12345)
	assert.Equal(t, int64(12000), tm.AlignForward(SecMs).Millis())
	assert.Equal(t, int64(13000), tm.AlignBackward(SecMs).Millis())
	assert.Equal(t, int64(12000), FromMillis(12000).AlignBackward(SecMs).Millis())
	assert.Equal(t, int64(-2000), FromMillis(-1500).AlignForward(SecMs).Millis())
	assert.Equal(t, int64(-1000), FromMillis(-1500).AlignBackward(SecMs).Millis())
	assert.Equal(t, tm, tm.AlignForward(0))
}

func TestMapKey(t *testing.T) {
	m := map[Instant]int{FromMillis(1): 1}
	m[FromMillis(1)]++
	assert.Equal(t, 2, m[FromMillis(1)])
}

func TestFormatParse(t *testing.T) {
	SetLocation(time.UTC)
	defer SetLocation(time.Local)
	tm := FromMillis(1700000000123)
	assert.Equal(t, "2023-11-14 22:13:20.123", tm.String())

	p, err := Parse(tm.String())
	require.NoError(t, err)
	assert.Equal(t, tm, p)

	p, err = Parse("1700000000123")
	require.NoError(t, err)
	assert.Equal(t, tm, p)

	_, err = Parse("not a time")
	assert.Error(t, err)
}

// 切换时区与格式化并发进行, 在-race下不应报告数据竞争
func TestSetLocationConcurrent(t *testing.T) {
	defer SetLocation(time.Local)
	cst := time.FixedZone("CST", 8*3600)
	tm := FromMillis(1700000000123)
	SetLocation(time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if j%2 == 0 {
					SetLocation(cst)
				} else {
					SetLocation(time.UTC)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s := tm.String()
				assert.Contains(t, []string{"2023-11-14 22:13:20.123", "2023-11-15 06:13:20.123"}, s)
			}
		}()
	}
	wg.Wait()

	SetLocation(cst)
	assert.Equal(t, cst, Location())
	assert.Equal(t, "2023-11-15 06:13:20.123", tm.String())
}

func TestTimedOrder(t *testing.T) {
	a := At(FromMillis(10), "a")
	b := At(FromMillis(20), "b")
	n1 := Forever("n1")
	n2 := Forever("n2")
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, -1, b.Compare(n1))
	assert.Equal(t, 1, n1.Compare(a))
	assert.Equal(t, 0, n1.Compare(n2))

	assert.True(t, a.DueBy(FromMillis(10)))
	assert.False(t, a.DueBy(FromMillis(9)))
	assert.False(t, n1.DueBy(FromMillis(math.MaxInt64)))
}
