package ringbuf

import (
	"fmt"

	"github.com/real-logic/agrona-sub008/internal/membuffer"
	"github.com/real-logic/agrona-sub008/internal/record"
)

// MPSC is a many-producer/single-consumer ring buffer over an
// membuffer.AtomicBuffer. Producers claim space with a CAS loop on the
// trailer's tail counter; the single consumer reads sequentially from
// head and publishes its own advance.
//
// Grounded on the teacher's Sequencer.Next/Publish (CAS claim, release
// publish of a slot's sequence number) and EventProcessor.processLoop
// (single-goroutine sequential consumption), generalized from
// fixed-size typed slots to variable-length framed byte records.
type MPSC struct {
	descriptor
}

// NewMPSC wraps buf as an MPSC ring. buf's length must equal
// capacity+TrailerLength for some positive power-of-two capacity.
func NewMPSC(buf *membuffer.AtomicBuffer) *MPSC {
	return &MPSC{descriptor: newDescriptor(buf, func(capacity int) int {
		max := capacity / 8
		if max < record.HeaderLength {
			max = record.HeaderLength
		}
		return max
	})}
}

func (r *MPSC) validateType(msgType int32) {
	if msgType < record.MinUserType {
		membuffer.Fatalf("mpsc: invalid record type %d, must be >= %d", msgType, record.MinUserType)
	}
}

func (r *MPSC) validateLength(length int) {
	if length < 0 || length > r.maxMsgLength {
		membuffer.Fatalf("mpsc: record length %d outside [0, %d]", length, r.maxMsgLength)
	}
}

// claimCapacity implements spec §4.2's claim_capacity algorithm. It
// returns the payload-header write index and true on success; on
// failure it returns false (INSUFFICIENT_CAPACITY to the caller), having
// still advanced tail to the buffer end as pure padding if the failure
// was a wrap-point race (per §9's mandated "advance tail, still report
// insufficient capacity" variant, to avoid livelock at the wrap point).
func (r *MPSC) claimCapacity(recordLength int) (int, bool) {
	required := int64(record.Align(recordLength))
	capacity := int64(r.capacity)
	mask := r.mask
	head := r.getHeadCache()

	for {
		tail := r.getTail()
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
		padding := int64(0)
		newTail := tail + required
		writeIndex := tailIndex

		if required > toEnd {
			if required > head&mask {
				head = r.getHead()
				if required > head&mask {
					// Wrap-starvation: still claim the remainder of the
					// buffer as padding so no other producer re-races this
					// same dead end, but report failure to this caller.
					padTail := tail + toEnd
					if r.buffer.CompareAndSetInt64(r.tailOffset(), tail, padTail) {
						r.writePadding(int(tailIndex), int(toEnd))
					}
					return 0, false
				}
				r.setHeadCache(head)
			}
			padding = toEnd
			newTail += padding
			writeIndex = 0
		}

		if r.buffer.CompareAndSetInt64(r.tailOffset(), tail, newTail) {
			if padding != 0 {
				r.writePadding(int(tailIndex), int(padding))
			}
			return int(writeIndex), true
		}
	}
}

// writePadding publishes a padding record spanning [index, index+length)
// so the consumer can skip it immediately.
func (r *MPSC) writePadding(index, length int) {
	r.buffer.PutInt32Release(record.LengthOffset(index), -int32(length))
	r.buffer.PutInt32(record.TypeOffset(index), record.PaddingType)
	r.buffer.PutInt32Release(record.LengthOffset(index), int32(length))
}

// Write claims len+HeaderLength bytes and publishes a user record in one
// call. It returns false only when the ring cannot satisfy the claim
// after a fresh observation of head.
func (r *MPSC) Write(msgType int32, src []byte, off, length int) bool {
	r.validateType(msgType)
	r.validateLength(length)

	recordLength := length + record.HeaderLength
	index, ok := r.claimCapacity(recordLength)
	if !ok {
		return false
	}

	r.buffer.PutInt32Release(record.LengthOffset(index), -int32(recordLength))
	r.buffer.PutInt32(record.TypeOffset(index), msgType)
	r.buffer.PutBytes(record.PayloadOffset(index), src, off, length)
	r.buffer.PutInt32Release(record.LengthOffset(index), int32(recordLength))
	return true
}

// TryClaim reserves length+HeaderLength bytes for msgType and returns the
// payload offset for the caller to fill; the record is left in the
// claimed state until Commit or Abort. Returns
// record.InsufficientCapacity if the ring cannot satisfy the claim.
func (r *MPSC) TryClaim(msgType int32, length int) int {
	r.validateType(msgType)
	r.validateLength(length)

	recordLength := length + record.HeaderLength
	index, ok := r.claimCapacity(recordLength)
	if !ok {
		return record.InsufficientCapacity
	}

	r.buffer.PutInt32Release(record.LengthOffset(index), -int32(recordLength))
	r.buffer.PutInt32(record.TypeOffset(index), msgType)
	return record.PayloadOffset(index)
}

// Buffer exposes the ring's backing buffer so TryClaim callers can write
// their payload directly (zero-copy).
func (r *MPSC) Buffer() *membuffer.AtomicBuffer { return r.buffer }

// Commit transitions a claimed record to committed. index is the
// payload offset returned by TryClaim, not the record's length-field
// offset.
func (r *MPSC) Commit(index int) {
	recordIndex := index - record.HeaderLength
	current := r.buffer.GetInt32Volatile(record.LengthOffset(recordIndex))
	if current >= 0 {
		r.fatalAlreadyFinalized(recordIndex, current, "committed")
	}
	r.buffer.PutInt32Release(record.LengthOffset(recordIndex), -current)
}

// Abort transitions a claimed record to a committed padding record that
// the consumer will skip. index is the payload offset returned by
// TryClaim.
func (r *MPSC) Abort(index int) {
	recordIndex := index - record.HeaderLength
	current := r.buffer.GetInt32Volatile(record.LengthOffset(recordIndex))
	if current >= 0 {
		r.fatalAlreadyFinalized(recordIndex, current, "aborted")
	}
	r.buffer.PutInt32(record.TypeOffset(recordIndex), record.PaddingType)
	r.buffer.PutInt32Release(record.LengthOffset(recordIndex), -current)
}

func (r *MPSC) fatalAlreadyFinalized(index int, currentLength int32, verb string) {
	msgType := r.buffer.GetInt32(record.TypeOffset(index))
	if msgType == record.PaddingType {
		membuffer.Fatalf("mpsc: record at %d previously aborted (length=%d)", index, currentLength)
	}
	membuffer.Fatalf("mpsc: record at %d previously %s (length=%d)", index, verb, currentLength)
}

// Read drains records starting at head, invoking handler for each user
// message, until the data block is exhausted or the handler fails. head
// is advanced by the number of bytes processed on every exit path,
// including handler failure.
func (r *MPSC) Read(handler Handler) (int, error) {
	return r.ReadN(handler, -1)
}

// ReadN is Read bounded to at most limit messages. A negative limit
// means unbounded.
func (r *MPSC) ReadN(handler Handler, limit int) (messagesRead int, err error) {
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

// ControlledRead is Read with per-message control: the handler's Action
// decides whether to continue, abort without consuming, break after
// consuming, or commit head immediately and keep going.
func (r *MPSC) ControlledRead(handler ControlledHandler) (int, error) {
	return r.ControlledReadN(handler, -1)
}

// ControlledReadN is ControlledRead bounded to at most limit messages. A
// negative limit means unbounded.
func (r *MPSC) ControlledReadN(handler ControlledHandler, limit int) (messagesRead int, err error) {
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

func callHandlerSafely(handler Handler, msgType int32, buf *membuffer.AtomicBuffer, index, length int) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("ringbuf: handler panicked: %v", p)
		}
	}()
	return handler(msgType, buf, index, length)
}

// Unblock recovers from a stranded claim left behind by a dead producer:
// a claimed-but-never-committed record, or a gap of still-zero slots
// between head and tail. Returns false if there is nothing to recover.
func (r *MPSC) Unblock() bool {
	head := r.getHead()
	tail := r.getTail()
	if head == tail {
		return false
	}

	ci := int(head & r.mask)
	pi := int(tail & r.mask)

	length := r.buffer.GetInt32Acquire(record.LengthOffset(ci))
	switch {
	case length < 0:
		r.buffer.PutInt32(record.TypeOffset(ci), record.PaddingType)
		r.buffer.PutInt32Release(record.LengthOffset(ci), -length)
		return true
	case length == 0:
		scanLimit := pi
		if ci > pi {
			scanLimit = r.capacity
		}
		for i := ci + record.HeaderLength; i < scanLimit; i += record.HeaderLength {
			if r.buffer.GetInt32Acquire(record.LengthOffset(i)) == 0 {
				continue
			}
			if r.allZeroBetween(ci, i) {
				gap := i - ci
				r.buffer.PutInt32(record.TypeOffset(ci), record.PaddingType)
				r.buffer.PutInt32Release(record.LengthOffset(ci), int32(gap))
				return true
			}
			return false
		}
		return false
	default:
		return false
	}
}

func (r *MPSC) allZeroBetween(start, end int) bool {
	for i := start; i < end; i += record.HeaderLength {
		if r.buffer.GetInt32Acquire(record.LengthOffset(i)) != 0 {
			return false
		}
	}
	return true
}
