package ringbuf

import "github.com/real-logic/agrona-sub008/internal/membuffer"

// Action is the verdict a ControlledHandler returns for a message read
// from a ring buffer, driving how the consumer counts and publishes.
type Action int

const (
	// ActionContinue counts the message and keeps reading (the default).
	ActionContinue Action = iota
	// ActionAbort un-counts the current message and stops before
	// advancing head past it.
	ActionAbort
	// ActionBreak counts the current message and stops.
	ActionBreak
	// ActionCommit counts the message, publishes head immediately, and
	// continues reading.
	ActionCommit
)

// Handler processes one message read from a ring buffer. buf, index and
// length describe the message payload (the header is not included). A
// non-nil return stops the read after head has been advanced past the
// failing message, per spec §7 class 4.
type Handler func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) error

// ControlledHandler processes one message from a controlled read and
// decides how the consumer should proceed.
type ControlledHandler func(msgType int32, buf *membuffer.AtomicBuffer, index, length int) Action
