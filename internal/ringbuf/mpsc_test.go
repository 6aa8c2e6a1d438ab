package ringbuf

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-logic/agrona-sub008/internal/membuffer"
	"github.com/real-logic/agrona-sub008/internal/record"
)

func newMPSC(t *testing.T, capacity int) *MPSC {
	t.Helper()
	region := membuffer.NewMemoryRegion(capacity + TrailerLength)
	return NewMPSC(region.View())
}

func int32Bytes(v int32) []byte {
	b := make([]byte, 4)
	binary.NativeEndian.PutUint32(b, uint32(v))
	return b
}

func readInt32(buf *membuffer.AtomicBuffer, index int) int32 {
	return buf.GetInt32(index)
}

// TestFillAndDrain is scenario 1: two producers race to write before a
// single consumer drains, and only the six causally-consistent
// (first,second) payload pairs are acceptable.
func TestFillAndDrain(t *testing.T) {
	r := newMPSC(t, 1024)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); r.Write(7, int32Bytes(5), 0, 4) }()
	go func() { defer wg.Done(); r.Write(7, int32Bytes(16), 0, 4) }()
	wg.Wait()

	var payloads []int32
	_, err := r.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
		assert.Equal(t, int32(7), msgType)
		payloads = append(payloads, readInt32(buf, index))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, payloads, 2)

	allowed := map[[2]int32]bool{
		{0, 0}: true, {0, 16}: true, {5, 0}: true,
		{5, 16}: true, {16, 0}: true, {16, 5}: true,
	}
	assert.True(t, allowed[[2]int32{payloads[0], payloads[1]}], "unexpected pair %v", payloads)
}

// TestClaimAbortCommit is scenario 2.
func TestClaimAbortCommit(t *testing.T) {
	r := newMPSC(t, 1024)

	idx := r.TryClaim(19, 8)
	require.NotEqual(t, record.InsufficientCapacity, idx)
	r.Buffer().PutInt64(idx, -1)
	r.Abort(idx)

	idx2 := r.TryClaim(19, 4)
	require.NotEqual(t, record.InsufficientCapacity, idx2)
	r.Buffer().PutInt32(idx2, 5)
	r.Commit(idx2)

	var seen []int32
	_, err := r.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
		assert.Equal(t, int32(19), msgType)
		seen = append(seen, readInt32(buf, index))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{5}, seen)
}

// TestWrapAroundPadding is scenario 3, adapted to capacities that
// actually exercise the wrap (a ring can never wrap past bytes the
// consumer hasn't yet freed, so the first records are drained before the
// second write; the largest payload a 128-byte ring accepts is 16 bytes):
// five 16-byte payloads (24-byte records) leave an 8-byte remainder at
// the end of a 128-byte ring, too small for the next 11-byte payload, so
// that write must land a padding record over the remainder and place
// its own record at offset 0.
func TestWrapAroundPadding(t *testing.T) {
	r := newMPSC(t, 128)

	first := make([]byte, 16)
	for i := 0; i < 5; i++ {
		require.True(t, r.Write(1, first, 0, len(first)))
	}

	n, err := r.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
		assert.Equal(t, int32(1), msgType)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.EqualValues(t, 120, r.ConsumerPosition())

	second := make([]byte, 11)
	for i := range second {
		second[i] = byte(i + 1)
	}
	require.True(t, r.Write(2, second, 0, len(second)))

	// A single Read call only scans up to the buffer's physical end, so
	// the padding record is consumed first; a second call picks back up
	// at the wrapped record placed at offset 0.
	handler := func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
		return nil
	}
	n, err := r.Read(handler)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "first call only drains the padding")

	var types []int32
	_, err = r.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
		types = append(types, msgType)
		assert.Equal(t, byte(1), buf.GetByte(index))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{2}, types, "padding must be skipped silently")
}

// TestUnblockAfterStrandedClaim is scenario 4.
func TestUnblockAfterStrandedClaim(t *testing.T) {
	r := newMPSC(t, 256)

	idx := r.TryClaim(3, 24)
	require.NotEqual(t, record.InsufficientCapacity, idx)
	// Producer dies here: never commits or aborts.

	assert.EqualValues(t, 32, r.Size())
	assert.True(t, r.Unblock())

	n, err := r.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
		t.Fatalf("unexpected user message type=%d", msgType)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.EqualValues(t, 32, r.ConsumerPosition())
}

// TestCorrelationIDMonotonic is scenario 5.
func TestCorrelationIDMonotonic(t *testing.T) {
	r := newMPSC(t, 256)

	var wg sync.WaitGroup
	ids := make(chan int64, 3)
	wg.Add(3)
	for i := 0; i < 3; i++ {
		go func() {
			defer wg.Done()
			ids <- r.NextCorrelationID()
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Equal(t, map[int64]bool{0: true, 1: true, 2: true}, seen)
	assert.EqualValues(t, 3, r.NextCorrelationID())
}

func TestWriteReturnsFalseWhenFull(t *testing.T) {
	r := newMPSC(t, 32)
	payload := make([]byte, 8)

	ok := r.Write(1, payload, 0, len(payload))
	require.True(t, ok)
	ok = r.Write(1, payload, 0, len(payload))
	require.True(t, ok)

	ok = r.Write(1, payload, 0, len(payload))
	assert.False(t, ok, "ring should be full")
}

func TestDoubleCommitPanics(t *testing.T) {
	r := newMPSC(t, 256)
	idx := r.TryClaim(1, 4)
	require.NotEqual(t, record.InsufficientCapacity, idx)
	r.Commit(idx)
	assert.Panics(t, func() { r.Commit(idx) })
}

func TestDoubleAbortPanics(t *testing.T) {
	r := newMPSC(t, 256)
	idx := r.TryClaim(1, 4)
	require.NotEqual(t, record.InsufficientCapacity, idx)
	r.Abort(idx)
	assert.Panics(t, func() { r.Abort(idx) })
}

// TestDekkerInvariant stresses the causal-consistency guarantee: a
// consumer that observes the new length via acquire must never observe
// a stale type or payload underneath it.
func TestDekkerInvariant(t *testing.T) {
	r := newMPSC(t, 4096)
	const iterations = 5000

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; {
			if r.Write(int32(i%1000+1), int32Bytes(int32(i)), 0, 4) {
				i++
			}
		}
	}()

	read := 0
	for read < iterations {
		n, err := r.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
			payload := readInt32(buf, index)
			assert.Equal(t, msgType, payload%1000+1)
			return nil
		})
		require.NoError(t, err)
		read += n
	}
	<-done
}

// TestControlledReadActionAbort verifies that ActionAbort un-counts the
// current message and leaves head unmoved, so the same record is
// re-delivered on the next call.
func TestControlledReadActionAbort(t *testing.T) {
	r := newMPSC(t, 256)
	require.True(t, r.Write(1, int32Bytes(42), 0, 4))

	before := r.ConsumerPosition()
	n, err := r.ControlledRead(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) Action {
		assert.Equal(t, int32(42), readInt32(buf, index))
		return ActionAbort
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "aborted message must not be counted")
	assert.Equal(t, before, r.ConsumerPosition(), "head must not advance past an aborted message")

	var redelivered []int32
	n, err = r.ControlledRead(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) Action {
		redelivered = append(redelivered, readInt32(buf, index))
		return ActionContinue
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int32{42}, redelivered, "the aborted record must be re-delivered")
}

// TestControlledReadActionBreak verifies that ActionBreak counts and
// advances past the current message but stops before reading the next.
func TestControlledReadActionBreak(t *testing.T) {
	r := newMPSC(t, 256)
	require.True(t, r.Write(1, int32Bytes(1), 0, 4))
	require.True(t, r.Write(1, int32Bytes(2), 0, 4))

	var seen []int32
	n, err := r.ControlledRead(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) Action {
		seen = append(seen, readInt32(buf, index))
		return ActionBreak
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int32{1}, seen)

	n, err = r.ControlledRead(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) Action {
		seen = append(seen, readInt32(buf, index))
		return ActionContinue
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int32{1, 2}, seen, "the second record must still be delivered on the next call")
}

// TestControlledReadActionCommit verifies that ActionCommit publishes
// head immediately rather than waiting for the read to end: by the time
// the handler is invoked for the third message, head must already have
// advanced past the first two records committed via ActionCommit.
func TestControlledReadActionCommit(t *testing.T) {
	r := newMPSC(t, 256)
	require.True(t, r.Write(1, int32Bytes(1), 0, 4))
	require.True(t, r.Write(1, int32Bytes(2), 0, 4))
	require.True(t, r.Write(1, int32Bytes(3), 0, 4))

	var positionAtThirdMessage int64
	var seen []int32
	n, err := r.ControlledRead(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) Action {
		seen = append(seen, readInt32(buf, index))
		switch len(seen) {
		case 2:
			return ActionCommit
		case 3:
			positionAtThirdMessage = r.ConsumerPosition()
		}
		return ActionContinue
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []int32{1, 2, 3}, seen)
	assert.EqualValues(t, 32, positionAtThirdMessage, "head must already be published past the two committed records before the read loop reaches the third")
}

func TestHandlerErrorStopsReadButAdvancesHead(t *testing.T) {
	r := newMPSC(t, 256)
	payload := make([]byte, 4)
	require.True(t, r.Write(1, payload, 0, 4))

	boom := assert.AnError
	calls := 0
	n, err := r.Read(func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error {
		calls++
		return boom
	})
	assert.Equal(t, boom, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 0, r.Size(), "head must advance past the failing message")
}
