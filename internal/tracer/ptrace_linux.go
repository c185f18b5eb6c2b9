//go:build linux

package tracer

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// setNonblock puts f's fd in non-blocking mode, equivalent to
// fcntl(F_SETFL, O_NONBLOCK) on the helper's stderr.
func setNonblock(f *os.File) error {
	return unix.SetNonblock(int(f.Fd()), true)
}

// FindAttachablePIDs resolves every pid whose process name matches name and
// is currently attachable via ptrace. It builds a fresh result slice rather
// than mutating one while iterating over it.
func FindAttachablePIDs(name string) ([]int, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("tracer: read /proc: %w", err)
	}

	var matched []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		comm, err := os.ReadFile("/proc/" + e.Name() + "/comm")
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) != name {
			continue
		}
		matched = append(matched, pid)
	}

	var attachable []int
	for _, pid := range matched {
		if isAttachable(pid) {
			attachable = append(attachable, pid)
		}
	}
	return attachable, nil
}

// isAttachable probes pid with PTRACE_ATTACH/PTRACE_DETACH.
func isAttachable(pid int) bool {
	if err := unix.PtraceAttach(pid); err != nil {
		return false
	}
	var ws unix.WaitStatus
	_, _ = unix.Wait4(pid, &ws, 0, nil)
	_ = unix.PtraceDetach(pid)
	return true
}
