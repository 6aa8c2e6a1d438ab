package ringbuf

import (
	"github.com/real-logic/agrona-sub008/internal/membuffer"
	"github.com/real-logic/agrona-sub008/internal/record"
)

// SPSC is a single-producer/single-consumer ring buffer over an
// membuffer.AtomicBuffer. There is exactly one writer and exactly one
// reader; neither side needs a CAS loop, only release/acquire ordering
// on the shared tail and head counters.
//
// Grounded on le-bot-team-leBotChatClient/pkg/buffer's lock-free SPSC
// (plain index arithmetic, no compare-and-swap, single release store to
// publish a write) layered onto the same record framing as MPSC so both
// variants share a wire format.
type SPSC struct {
	descriptor
}

// NewSPSC wraps buf as an SPSC ring. buf's length must equal
// capacity+TrailerLength for some positive power-of-two capacity.
func NewSPSC(buf *membuffer.AtomicBuffer) *SPSC {
	return &SPSC{descriptor: newDescriptor(buf, func(capacity int) int {
		max := capacity / 8
		if max < record.HeaderLength {
			max = record.HeaderLength
		}
		return max
	})}
}

func (r *SPSC) validateType(msgType int32) {
	if msgType < record.MinUserType {
		membuffer.Fatalf("spsc: invalid record type %d, must be >= %d", msgType, record.MinUserType)
	}
}

func (r *SPSC) validateLength(length int) {
	if length < 0 || length > r.maxMsgLength {
		membuffer.Fatalf("spsc: record length %d outside [0, %d]", length, r.maxMsgLength)
	}
}

// claimCapacity mirrors MPSC's claim algorithm without the CAS retry
// loop: a single producer never races itself for the tail counter, only
// observes the consumer's head. On a wrap it zero-fills the dead tail
// region, writes a padding record over it, release-stores tail past the
// padding, and returns offset 0; the caller then writes the record at the
// front of the buffer and publishes tail again past it.
func (r *SPSC) claimCapacity(recordLength int) (int, bool) {
	required := int64(record.Align(recordLength))
	capacity := int64(r.capacity)
	mask := r.mask

	tail := r.getTail()
	head := r.getHeadCache()
	available := capacity - (tail - head)
	if available < required {
		head = r.getHead()
		available = capacity - (tail - head)
		if available < required {
			return 0, false
		}
		r.setHeadCache(head)
	}

	tailIndex := tail & mask
	toEnd := capacity - tailIndex
	if required <= toEnd {
		return int(tailIndex), true
	}

	if required > head&mask {
		head = r.getHead()
		if required > head&mask {
			return 0, false
		}
		r.setHeadCache(head)
	}

	r.buffer.SetMemory(int(tailIndex), int(toEnd), 0)
	r.writePadding(int(tailIndex), int(toEnd))
	r.buffer.PutInt64Release(r.tailOffset(), tail+toEnd)
	return 0, true
}

func (r *SPSC) writePadding(index, length int) {
	r.buffer.PutInt32(record.TypeOffset(index), record.PaddingType)
	r.buffer.PutInt32Release(record.LengthOffset(index), int32(length))
}

// Write claims len+HeaderLength bytes and publishes a user record in one
// call. It returns false only when the ring cannot satisfy the claim
// after a fresh observation of head.
func (r *SPSC) Write(msgType int32, src []byte, off, length int) bool {
	r.validateType(msgType)
	r.validateLength(length)

	recordLength := length + record.HeaderLength
	index, ok := r.claimCapacity(recordLength)
	if !ok {
		return false
	}

	r.buffer.PutInt32(record.TypeOffset(index), msgType)
	r.buffer.PutBytes(record.PayloadOffset(index), src, off, length)
	r.buffer.PutInt32Release(record.LengthOffset(index), int32(recordLength))
	r.buffer.PutInt64Release(r.tailOffset(), r.getTail()+int64(record.Align(recordLength)))
	return true
}

// TryClaim reserves length+HeaderLength bytes for msgType and returns
// the payload offset for the caller to fill; the record is left
// unpublished until Commit or Abort. Returns record.InsufficientCapacity
// if the ring cannot satisfy the claim. Because there is only one
// producer, the reserved length is tracked in the header itself
// (negated, release-stored) exactly as MPSC does, purely so Commit and
// Abort can read it back without a side table.
func (r *SPSC) TryClaim(msgType int32, length int) int {
	r.validateType(msgType)
	r.validateLength(length)

	recordLength := length + record.HeaderLength
	index, ok := r.claimCapacity(recordLength)
	if !ok {
		return record.InsufficientCapacity
	}

	r.buffer.PutInt32(record.TypeOffset(index), msgType)
	r.buffer.PutInt32Release(record.LengthOffset(index), -int32(recordLength))
	return record.PayloadOffset(index)
}

// Buffer exposes the ring's backing buffer so TryClaim callers can write
// their payload directly (zero-copy).
func (r *SPSC) Buffer() *membuffer.AtomicBuffer { return r.buffer }

// Commit publishes a claimed record and advances tail past it. index is
// the payload offset returned by TryClaim.
func (r *SPSC) Commit(index int) {
	recordIndex := index - record.HeaderLength
	current := r.buffer.GetInt32(record.LengthOffset(recordIndex))
	if current >= 0 {
		membuffer.Fatalf("spsc: record at %d previously committed (length=%d)", recordIndex, current)
	}
	length := -current
	r.buffer.PutInt32Release(record.LengthOffset(recordIndex), length)
	r.buffer.PutInt64Release(r.tailOffset(), r.getTail()+int64(record.Align(int(length))))
}

// Abort discards a claimed record as padding and advances tail past it.
// index is the payload offset returned by TryClaim.
func (r *SPSC) Abort(index int) {
	recordIndex := index - record.HeaderLength
	current := r.buffer.GetInt32(record.LengthOffset(recordIndex))
	if current >= 0 {
		membuffer.Fatalf("spsc: record at %d previously aborted (length=%d)", recordIndex, current)
	}
	length := -current
	r.buffer.PutInt32(record.TypeOffset(recordIndex), record.PaddingType)
	r.buffer.PutInt32Release(record.LengthOffset(recordIndex), length)
	r.buffer.PutInt64Release(r.tailOffset(), r.getTail()+int64(record.Align(int(length))))
}

// Read drains records starting at head, invoking handler for each user
// message, until the data block is exhausted or the handler fails.
func (r *SPSC) Read(handler Handler) (int, error) {
	return r.ReadN(handler, -1)
}

// ReadN is Read bounded to at most limit messages. A negative limit
// means unbounded.
func (r *SPSC) ReadN(handler Handler, limit int) (messagesRead int, err error) {
	head := r.getHead()
	headIndex := int(head & r.mask)
	maxBlock := r.capacity - headIndex
	bytesRead := 0

	defer func() {
		if bytesRead > 0 {
			r.buffer.SetMemory(headIndex, bytesRead, 0)
			r.setHead(head + int64(bytesRead))
		}
	}()

	for bytesRead < maxBlock && (limit < 0 || messagesRead < limit) {
		recordIndex := headIndex + bytesRead
		length := r.buffer.GetInt32Acquire(record.LengthOffset(recordIndex))
		if length <= 0 {
			break
		}
		bytesRead += record.Align(int(length))

		msgType := r.buffer.GetInt32(record.TypeOffset(recordIndex))
		if msgType == record.PaddingType {
			continue
		}

		herr := callHandlerSafely(handler, msgType, r.buffer, record.PayloadOffset(recordIndex), int(length)-record.HeaderLength)
		messagesRead++
		if herr != nil {
			err = herr
			break
		}
	}
	return messagesRead, err
}

// ControlledRead is Read with per-message control, identical in
// semantics to MPSC's.
func (r *SPSC) ControlledRead(handler ControlledHandler) (int, error) {
	return r.ControlledReadN(handler, -1)
}

// ControlledReadN is ControlledRead bounded to at most limit messages. A
// negative limit means unbounded.
func (r *SPSC) ControlledReadN(handler ControlledHandler, limit int) (messagesRead int, err error) {
	head := r.getHead()
	headIndex := int(head & r.mask)
	maxBlock := r.capacity - headIndex
	bytesRead := 0

	defer func() {
		if bytesRead > 0 {
			r.buffer.SetMemory(headIndex, bytesRead, 0)
			r.setHead(head + int64(bytesRead))
		}
	}()

readLoop:
	for bytesRead < maxBlock && (limit < 0 || messagesRead < limit) {
		recordIndex := headIndex + bytesRead
		length := r.buffer.GetInt32Acquire(record.LengthOffset(recordIndex))
		if length <= 0 {
			break
		}
		aligned := record.Align(int(length))

		msgType := r.buffer.GetInt32(record.TypeOffset(recordIndex))
		if msgType == record.PaddingType {
			bytesRead += aligned
			continue
		}

		action := handler(msgType, r.buffer, record.PayloadOffset(recordIndex), int(length)-record.HeaderLength)
		switch action {
		case ActionAbort:
			break readLoop
		case ActionBreak:
			bytesRead += aligned
			messagesRead++
			break readLoop
		case ActionCommit:
			bytesRead += aligned
			messagesRead++
			r.buffer.SetMemory(headIndex, bytesRead, 0)
			head += int64(bytesRead)
			r.setHead(head)
			headIndex = int(head & r.mask)
			maxBlock = r.capacity - headIndex
			bytesRead = 0
		default: // ActionContinue
			bytesRead += aligned
			messagesRead++
		}
	}
	return messagesRead, nil
}

// Unblock always returns false: a single producer can never die mid-claim
// without the whole process (and thus the consumer) dying with it, so
// there is nothing to recover.
func (r *SPSC) Unblock() bool { return false }
