// Package system wraps the small set of raw process/signal primitives the
// init and supervisor stages need that don't belong in the
// syscall facade because they aren't single syscalls: parsing /proc,
// composing prctl calls, and the pid/start-time fingerprint used to detect
// pid reuse.
package system

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ProcessState mirrors the single-character state field of /proc/<pid>/stat.
type ProcessState rune

const (
	Zombie ProcessState = 'Z'
	Dead   ProcessState = 'X'
)

// Stat holds the fields of /proc/<pid>/stat this runtime cares about: the
// process state and its start time (field 22, in clock ticks since boot).
// StartTime, paired with the pid, is the fingerprint container_linux.go uses to
// tell a live container's process apart from an unrelated process that
// later reused the same pid.
type Stat struct {
	State     ProcessState
	StartTime uint64
}

// GetStat reads /proc/<pid>/stat. Field 2 (comm) is parenthesized and may
// contain spaces or parens, so it is skipped over before tokenizing the
// remaining whitespace-separated fields.
func GetStat(pid int) (Stat, error) {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return Stat{}, err
	}
	s := string(data)
	i := strings.LastIndex(s, ")")
	if i < 0 {
		return Stat{}, fmt.Errorf("system: malformed /proc/%d/stat", pid)
	}
	fields := strings.Fields(s[i+1:])
	// fields[0] is state (field 3), fields[19] is starttime (field 22).
	if len(fields) < 20 {
		return Stat{}, fmt.Errorf("system: /proc/%d/stat has %d fields after comm, want >= 20", pid, len(fields))
	}
	start, err := strconv.ParseUint(fields[19], 10, 64)
	if err != nil {
		return Stat{}, fmt.Errorf("system: parse starttime: %w", err)
	}
	return Stat{State: ProcessState(fields[0][0]), StartTime: start}, nil
}

// Setctty sets the controlling terminal of the calling process to its
// current stdin, via TIOCSCTTY. Used by the init process once a console
// pty slave has been dup'd onto fd 0.
func Setctty() error {
	return unix.IoctlSetInt(0, unix.TIOCSCTTY, 0)
}

// GetParentDeathSignal returns the signal currently configured to be
// delivered to this process when its parent dies (PR_GET_PDEATHSIG).
func GetParentDeathSignal() (unix.Signal, error) {
	var sig int
	_, _, errno := unix.RawSyscall(unix.SYS_PRCTL, unix.PR_GET_PDEATHSIG, uintptr(unsafe.Pointer(&sig)), 0)
	if errno != 0 {
		return -1, errno
	}
	return unix.Signal(sig), nil
}

// ParentDeathSignal arms PR_SET_PDEATHSIG so the calling process receives
// sig when its parent exits. The standard init uses this to restore the
// signal after its credential change has cleared it.
func ParentDeathSignal(sig unix.Signal) error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(sig), 0, 0, 0)
}

// RunningInUserNS reports whether the calling process is confined to a
// user namespace whose root is not the initial one, by checking whether
// uid 0 maps to something other than the host root in self's uid_map.
// A one-line identity map ("0 0 4294967295") means not namespaced.
func RunningInUserNS() bool {
	f, err := os.Open("/proc/self/uid_map")
	if err != nil {
		// Kernels without user namespace support have no uid_map; treat
		// as not running in one.
		return false
	}
	defer f.Close()

	buf := make([]byte, 4096)
	n, err := f.Read(buf)
	if err != nil || n == 0 {
		return true
	}
	line := strings.TrimSpace(string(buf[:n]))
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return true
	}
	if fields[0] == "0" && fields[1] == "0" && fields[2] == "4294967295" {
		return false
	}
	return true
}

// ClockTicksPerSecond is sysconf(_SC_CLK_TCK). Linux has returned 100 for
// every architecture this runtime targets since the kernel fixed USER_HZ;
// there is no portable syscall for it, so the constant is hardcoded the
// way most Go process-stat readers do.
const ClockTicksPerSecond = 100

// Execv replaces the calling process image, the cgo-free equivalent of
// unix.Exec with an explicit argv0 distinct from the binary path. The
// setns-process path
// uses this as its final step, after namespaces are entered and the
// early package init() guard (see init.go) has already run.
func Execv(cmd string, args []string, env []string) error {
	name := cmd
	if !strings.Contains(cmd, "/") {
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			return err
		}
		name = resolved
	}
	return unix.Exec(name, args, env)
}
