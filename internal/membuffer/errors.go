package membuffer

import "fmt"

// PreconditionError is raised for programmer errors: bad offsets, bad
// alignment, or any other contract violation the caller must not retry.
// It is never returned as a value — callers recover it only in tests.
type PreconditionError struct {
	msg string
}

func (e *PreconditionError) Error() string { return e.msg }

// Fatalf panics with a PreconditionError built from format and args.
// It is the module's single fatal path: index/length out of bounds and
// misaligned ordered access (spec §7 class 1), invalid ring capacity,
// record type or length, region length and Snowflake parameters, and
// double commit/abort (spec §7 class 3).
func Fatalf(format string, args ...interface{}) {
	panic(&PreconditionError{msg: fmt.Sprintf(format, args...)})
}
