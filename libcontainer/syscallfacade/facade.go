// Package syscallfacade narrows the kernel calls the runtime needs down to
// a small interface. The default implementation calls
// golang.org/x/sys/unix directly; tests substitute a fake to assert call order
// (namespace entry order, mount/pivot_root sequencing) without needing
// root or real namespaces.
package syscallfacade

import "os"

// Syscaller is the set of raw kernel operations the core depends on.
// Every method maps to exactly one syscall (or a tight, unavoidable
// wrapper loop, e.g. retry-on-EINTR) so a caller's intent stays legible.
type Syscaller interface {
	PivotRoot(newRoot, putOld string) error
	Chroot(path string) error
	Chdir(path string) error
	Mount(source, target, fstype string, flags uintptr, data string) error
	Unmount(target string, flags int) error
	Unshare(flags uintptr) error
	Setns(fd int, nstype uintptr) error
	Sethostname(name string) error
	Setdomainname(name string) error
	SetresUID(ruid, euid, suid int) error
	SetresGID(rgid, egid, sgid int) error
	Setgroups(gids []int) error
	Capset(hdr CapHeader, data [2]CapData) error
	PrctlSetNoNewPrivs() error
	PrctlSetKeepCaps(keep bool) error
	PrctlSetDumpable(dumpable bool) error
	CloseRange(first, last uint, flags uint) error
	Mkfifo(path string, mode os.FileMode) error
	Mknod(path string, mode uint32, dev int) error
}

// CapHeader and CapData mirror the layout capset(2) expects; kept here
// rather than imported so the facade has no hard dependency on a
// specific capability library's wire format.
type CapHeader struct {
	Version uint32
	Pid     int32
}

type CapData struct {
	Effective   uint32
	Permitted   uint32
	Inheritable uint32
}

// Error wraps a failed syscall with its errno and the call name, matching
// the Syscall(errno, call) error kind from .
type Error struct {
	Errno error
	Call  string
}

func (e *Error) Error() string {
	return e.Call + ": " + e.Errno.Error()
}

func (e *Error) Unwrap() error { return e.Errno }

func wrap(call string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Errno: err, Call: call}
}
