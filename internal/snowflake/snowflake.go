// Package snowflake implements a timestamp+node+sequence 64-bit ID
// generator over a single ordered slot in an membuffer.AtomicBuffer,
// serving as an illustrative read-modify-write consumer of that buffer.
//
// Grounded on rishavpaul-system-design/order-matching-engine's
// Sequencer.Next (CAS-retry allocation of a monotonically increasing
// value) generalized from a bare counter to a composite bitfield.
package snowflake

import "github.com/real-logic/agrona-sub008/internal/membuffer"

// Generator issues Snowflake-style composite IDs from a shared ordered
// slot. Safe for concurrent use by multiple callers against the same
// slot, including across process boundaries if the slot lives in a
// Memory Region, since allocation is a CAS loop on the slot itself.
type Generator struct {
	buf         *membuffer.AtomicBuffer
	offset      int
	nodeID      int64
	nodeBits    uint
	seqBits     uint
	epochMillis int64
	clock       Clock

	nodeMask int64
	seqMask  int64
	shift    uint
}

// NewGenerator creates a Generator whose state lives at offset within
// buf (8 bytes, must be 8-byte aligned). nodeID must fit in nodeBits.
// clock defaults to SystemClock if nil.
func NewGenerator(buf *membuffer.AtomicBuffer, offset int, nodeID int64, nodeBits, seqBits uint, epochMillis int64, clock Clock) *Generator {
	if nodeBits+seqBits >= 63 {
		membuffer.Fatalf("snowflake: nodeBits+seqBits=%d leaves no room for a timestamp", nodeBits+seqBits)
	}
	nodeMask := int64(1)<<nodeBits - 1
	if nodeID < 0 || nodeID > nodeMask {
		membuffer.Fatalf("snowflake: nodeID %d does not fit in %d bits", nodeID, nodeBits)
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Generator{
		buf:         buf,
		offset:      offset,
		nodeID:      nodeID,
		nodeBits:    nodeBits,
		seqBits:     seqBits,
		epochMillis: epochMillis,
		clock:       clock,
		nodeMask:    nodeMask,
		seqMask:     int64(1)<<seqBits - 1,
		shift:       nodeBits + seqBits,
	}
}

func (g *Generator) pack(ts, seq int64) int64 {
	return (ts << g.shift) | (g.nodeID << g.seqBits) | seq
}

// NextID returns the next strictly increasing composite ID. Two
// concurrent callers against the same slot always observe distinct
// results: the loser of a CAS retries against the winner's published
// value. If the sequence space is exhausted within the current
// millisecond, NextID busy-spins until the clock advances.
func (g *Generator) NextID() int64 {
	for {
		prev := g.buf.GetInt64Acquire(g.offset)
		prevTs := prev >> g.shift
		prevSeq := prev & g.seqMask

		now := g.clock.NowMillis() - g.epochMillis
		ts := now
		if ts < prevTs {
			ts = prevTs
		}

		var seq int64
		if ts > prevTs {
			seq = 0
		} else {
			seq = prevSeq + 1
			if seq > g.seqMask {
				for {
					now = g.clock.NowMillis() - g.epochMillis
					if now > prevTs {
						break
					}
				}
				ts = now
				seq = 0
			}
		}

		candidate := g.pack(ts, seq)
		if g.buf.CompareAndSetInt64(g.offset, prev, candidate) {
			return candidate
		}
	}
}

// Decompose splits a composite ID back into its timestamp (milliseconds
// since epochMillis), node and sequence components.
func (g *Generator) Decompose(id int64) (timestampMillis, nodeID, sequence int64) {
	return id >> g.shift, (id >> g.seqBits) & g.nodeMask, id & g.seqMask
}
