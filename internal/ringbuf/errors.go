package ringbuf

import "errors"

// ErrInsufficientCapacity names, as an error value, the condition of a
// ring that cannot satisfy a claim after a fresh observation of head. No
// function in this package returns it: Write reports the condition by
// returning false and TryClaim by returning record.InsufficientCapacity.
// Space exhaustion is a normal, non-fatal condition: callers may retry,
// back off, or shed load (spec §7 class 2).
var ErrInsufficientCapacity = errors.New("ringbuf: insufficient capacity")
