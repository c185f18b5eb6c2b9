//go:build !linux

package tracer

import (
	"fmt"
	"os"
)

// setNonblock is a no-op outside Linux; the interceptor helper this package
// drives is Linux-only (ptrace-based), but the package still builds
// elsewhere so non-Linux development machines can run the rest of the
// module's tests.
func setNonblock(f *os.File) error { return nil }

// FindAttachablePIDs is unsupported outside Linux, since it relies on
// /proc and PTRACE_ATTACH.
func FindAttachablePIDs(name string) ([]int, error) {
	return nil, fmt.Errorf("tracer: FindAttachablePIDs requires linux")
}
