package stats

import (
	"math"

	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/emirpasic/gods/utils"
)

// accumulator yields the neutral level of everything pushed so far.
type accumulator interface {
	push(x float64)
	level() float64
}

// newAccumulator is indexed by Level.
var newAccumulator = [...]func() accumulator{
	Zero:   func() accumulator { return &zeroLevel{} },
	Mean:   func() accumulator { return &meanLevel{} },
	Median: func() accumulator { return newStreamingMedian() },
}

type zeroLevel struct{ n int }

func (z *zeroLevel) push(float64) { z.n++ }

func (z *zeroLevel) level() float64 {
	if z.n == 0 {
		return math.NaN()
	}
	return 0
}

type meanLevel struct {
	n   int
	sum float64
}

func (m *meanLevel) push(x float64) {
	m.n++
	m.sum += x
}

func (m *meanLevel) level() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

// streamingMedian keeps the lower half in a max-heap and the upper half in a
// min-heap; the lower half holds the extra element when the count is odd.
type streamingMedian struct {
	low  *binaryheap.Heap
	high *binaryheap.Heap
}

func newStreamingMedian() *streamingMedian {
	return &streamingMedian{
		low:  binaryheap.NewWith(func(a, b interface{}) int { return -utils.Float64Comparator(a, b) }),
		high: binaryheap.NewWith(utils.Float64Comparator),
	}
}

func (m *streamingMedian) push(x float64) {
	if top, ok := m.low.Peek(); !ok || x <= top.(float64) {
		m.low.Push(x)
	} else {
		m.high.Push(x)
	}

	switch {
	case m.low.Size() > m.high.Size()+1:
		v, _ := m.low.Pop()
		m.high.Push(v)
	case m.high.Size() > m.low.Size():
		v, _ := m.high.Pop()
		m.low.Push(v)
	}
}

func (m *streamingMedian) level() float64 {
	lo, ok := m.low.Peek()
	if !ok {
		return math.NaN()
	}
	if m.low.Size() == m.high.Size() {
		hi, _ := m.high.Peek()
		return (lo.(float64) + hi.(float64)) / 2
	}
	return lo.(float64)
}

// moments keeps first and second sums shifted by the first value seen so the
// squared deviation from any reference can be read without revisiting data.
type moments struct {
	n     int
	shift float64
	s1    float64
	s2    float64
}

func (m *moments) push(x float64) {
	if m.n == 0 {
		m.shift = x
	}
	y := x - m.shift
	m.n++
	m.s1 += y
	m.s2 += y * y
}

// rms is the root-mean-square deviation from about; NaN when empty.
func (m *moments) rms(about float64) float64 {
	if m.n == 0 || math.IsNaN(about) {
		return math.NaN()
	}
	d := about - m.shift
	ss := m.s2 - 2*d*m.s1 + float64(m.n)*d*d
	if ss < 0 {
		ss = 0
	}
	return math.Sqrt(ss / float64(m.n))
}
