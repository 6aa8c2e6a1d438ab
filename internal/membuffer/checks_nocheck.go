//go:build disableBoundsChecks

package membuffer

// Release build: bounds/alignment checks are no-ops. State-violation
// checks (double commit/abort) live in package ringbuf and are never
// gated by this tag.

func boundsCheck(capacity, index, width int) {}

func alignmentCheck(index, width int) {}
