package snowflake

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-logic/agrona-sub008/internal/membuffer"
)

func newSlot(t *testing.T) *membuffer.AtomicBuffer {
	t.Helper()
	region := membuffer.NewMemoryRegion(8)
	return region.View()
}

func TestNextIDMonotonic(t *testing.T) {
	buf := newSlot(t)
	var tick int64
	clock := ClockFunc(func() int64 { return atomic.AddInt64(&tick, 1) })
	g := NewGenerator(buf, 0, 1, 10, 12, 0, clock)

	prev := int64(-1)
	for i := 0; i < 1000; i++ {
		id := g.NextID()
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNextIDConcurrentCallersAreDistinct(t *testing.T) {
	buf := newSlot(t)
	g := NewGenerator(buf, 0, 3, 10, 12, 0, ClockFunc(func() int64 { return 1 }))

	const callers = 16
	const perCaller = 200
	ids := make(chan int64, callers*perCaller)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perCaller; j++ {
				ids <- g.NextID()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool, callers*perCaller)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, callers*perCaller)
}

// TestUniquenessUnderClockStall is the literal scenario: a clock that
// always returns 0, two concurrent callers producing two distinct IDs,
// then a third call on the same stalled timestamp producing a third.
func TestUniquenessUnderClockStall(t *testing.T) {
	buf := newSlot(t)
	g := NewGenerator(buf, 0, 0, 8, 4, 0, ClockFunc(func() int64 { return 0 }))

	var wg sync.WaitGroup
	ids := make(chan int64, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			ids <- g.NextID()
		}()
	}
	wg.Wait()
	close(ids)

	first := <-ids
	second := <-ids
	assert.NotEqual(t, first, second)

	third := g.NextID()
	assert.NotEqual(t, third, first)
	assert.NotEqual(t, third, second)

	// The zeroed slot decodes as a phantom ts=0/seq=0 "already issued" ID,
	// so the first real call claims seq=1, matching the spec scenario's
	// literal "e.g. 1 and 2".
	_, _, seq1 := g.Decompose(first)
	_, _, seq2 := g.Decompose(second)
	_, _, seq3 := g.Decompose(third)
	assert.ElementsMatch(t, []int64{1, 2, 3}, []int64{seq1, seq2, seq3})
}

func TestSequenceExhaustionBusySpinsUntilClockAdvances(t *testing.T) {
	buf := newSlot(t)
	var tick int64 = 1
	g := NewGenerator(buf, 0, 0, 8, 2, 0, ClockFunc(func() int64 { return atomic.LoadInt64(&tick) }))

	// sequence bits = 2 => seqMask = 3; exhaust 0..3 at the same
	// timestamp, then the next call must busy-spin until tick advances.
	for i := 0; i < 4; i++ {
		g.NextID()
	}

	done := make(chan int64, 1)
	go func() {
		done <- g.NextID()
	}()

	// Give the spinning goroutine a moment to observe the stalled clock
	// before advancing it.
	time.Sleep(10 * time.Millisecond)
	atomic.StoreInt64(&tick, 2)
	id := <-done
	newTs, _, seq := g.Decompose(id)
	assert.Equal(t, int64(2), newTs)
	assert.Equal(t, int64(0), seq)
}

func TestNewGeneratorRejectsOversizedNodeID(t *testing.T) {
	buf := newSlot(t)
	assert.Panics(t, func() {
		NewGenerator(buf, 0, 1<<10, 8, 12, 0, ClockFunc(func() int64 { return 0 }))
	})
}

func TestDecomposeRoundTrip(t *testing.T) {
	buf := newSlot(t)
	g := NewGenerator(buf, 0, 7, 10, 12, 0, ClockFunc(func() int64 { return 123456 }))
	id := g.NextID()
	ts, node, seq := g.Decompose(id)
	assert.Equal(t, int64(123456), ts)
	assert.Equal(t, int64(7), node)
	assert.Equal(t, int64(0), seq)
}
