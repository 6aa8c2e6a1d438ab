//go:build !disableBoundsChecks

package membuffer

// boundsCheck and alignmentCheck are the default, checked build: every
// access pays for a bounds/alignment check. Build with -tags
// disableBoundsChecks (see checks_nocheck.go) to strip them on the hot
// path, per spec §9 ("implementations may compile them out when a
// disable_bounds_checks feature flag is set").

func boundsCheck(capacity, index, width int) {
	if index < 0 || index+width > capacity {
		Fatalf("index=%d length=%d capacity=%d", index, width, capacity)
	}
}

func alignmentCheck(index, width int) {
	if index%width != 0 {
		Fatalf("index=%d is not aligned to width=%d", index, width)
	}
}
