// Package ringbuf implements the Ring Descriptor trailer and the
// MPSC/SPSC ring buffer variants built over an membuffer.AtomicBuffer.
//
// Grounded on rishavpaul-system-design/order-matching-engine/internal/disruptor
// (RingBuffer/Sequencer/EventProcessor: claim-via-CAS, gating sequence,
// cache-line padding) generalized from typed slots to framed byte
// records, and on le-bot-team-leBotChatClient/pkg/buffer (lock-free SPSC
// over a plain byte slice) for the single-producer variant.
package ringbuf

import (
	"github.com/real-logic/agrona-sub008/internal/membuffer"
	"github.com/real-logic/agrona-sub008/internal/record"
)

// CacheLineSize is the assumed cache line size used to pad trailer
// fields. Peers sharing a buffer must agree on this value; per spec §9
// it is parameterized here rather than hardcoded into offset math.
const CacheLineSize = 64

// trailerFieldSpan is the padding, in bytes, reserved for each trailer
// counter: two cache lines, so adjacent counters never share a line.
const trailerFieldSpan = 2 * CacheLineSize

// Trailer field offsets, relative to the start of the trailer (i.e.
// relative to `capacity` within the backing buffer).
const (
	tailFieldOffset        = 0 * trailerFieldSpan
	headCacheFieldOffset   = 1 * trailerFieldSpan
	headFieldOffset        = 2 * trailerFieldSpan
	correlationFieldOffset = 3 * trailerFieldSpan
	heartbeatFieldOffset   = 4 * trailerFieldSpan
)

// TrailerLength is the total size of the trailer block appended after a
// ring's power-of-two data area.
const TrailerLength = 5 * trailerFieldSpan

// descriptor wraps the shared trailer bookkeeping common to both ring
// variants: data-area capacity/mask and the trailer counter offsets
// within the backing buffer.
type descriptor struct {
	buffer       *membuffer.AtomicBuffer
	capacity     int
	mask         int64
	maxMsgLength int
}

func newDescriptor(buf *membuffer.AtomicBuffer, maxMsgLengthOf func(capacity int) int) descriptor {
	capacity := buf.Capacity() - TrailerLength
	if capacity <= 0 || !record.IsPowerOfTwo(capacity) {
		membuffer.Fatalf("ring capacity=%d must be a positive power of two (buffer length %d, trailer %d)",
			capacity, buf.Capacity(), TrailerLength)
	}
	return descriptor{
		buffer:       buf,
		capacity:     capacity,
		mask:         int64(capacity - 1),
		maxMsgLength: maxMsgLengthOf(capacity),
	}
}

func (d *descriptor) tailOffset() int        { return d.capacity + tailFieldOffset }
func (d *descriptor) headCacheOffset() int   { return d.capacity + headCacheFieldOffset }
func (d *descriptor) headOffset() int        { return d.capacity + headFieldOffset }
func (d *descriptor) correlationOffset() int { return d.capacity + correlationFieldOffset }
func (d *descriptor) heartbeatOffset() int   { return d.capacity + heartbeatFieldOffset }

// Capacity returns the ring's power-of-two data area size.
func (d *descriptor) Capacity() int { return d.capacity }

// MaxMsgLength returns the largest payload length a single record may
// carry.
func (d *descriptor) MaxMsgLength() int { return d.maxMsgLength }

func (d *descriptor) getTail() int64      { return d.buffer.GetInt64Acquire(d.tailOffset()) }
func (d *descriptor) getHead() int64      { return d.buffer.GetInt64Acquire(d.headOffset()) }
func (d *descriptor) setHead(v int64)     { d.buffer.PutInt64Release(d.headOffset(), v) }
func (d *descriptor) getHeadCache() int64 { return d.buffer.GetInt64Acquire(d.headCacheOffset()) }
func (d *descriptor) setHeadCache(v int64) {
	d.buffer.PutInt64Release(d.headCacheOffset(), v)
}

// NextCorrelationID atomically increments the trailer's correlation
// counter and returns the value it held before the increment: strictly
// monotonic and unique per call across every producer sharing the ring.
func (d *descriptor) NextCorrelationID() int64 {
	return d.buffer.GetAndAddInt64(d.correlationOffset(), 1)
}

// ConsumerHeartbeatTime publishes t as the consumer's heartbeat.
func (d *descriptor) ConsumerHeartbeatTime(t int64) {
	d.buffer.PutInt64Release(d.heartbeatOffset(), t)
}

// ConsumerHeartbeatTimeValue reads the consumer's last published
// heartbeat.
func (d *descriptor) ConsumerHeartbeatTimeValue() int64 {
	return d.buffer.GetInt64Acquire(d.heartbeatOffset())
}

// ProducerPosition returns the current tail position (bytes since ring
// inception).
func (d *descriptor) ProducerPosition() int64 { return d.getTail() }

// ConsumerPosition returns the current head position (bytes since ring
// inception).
func (d *descriptor) ConsumerPosition() int64 { return d.getHead() }

// Size returns an approximate snapshot of tail-head, clamped to
// [0, capacity], obtained by reading head, then tail, then head again
// and retrying if head changed underneath the read.
func (d *descriptor) Size() int64 {
	for {
		before := d.getHead()
		tail := d.getTail()
		after := d.getHead()
		if before == after {
			size := tail - after
			if size < 0 {
				return 0
			}
			if size > int64(d.capacity) {
				return int64(d.capacity)
			}
			return size
		}
	}
}
