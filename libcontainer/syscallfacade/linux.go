package syscallfacade

import (
	"os"

	"golang.org/x/sys/unix"
)

// Linux is the real Syscaller, backed directly by golang.org/x/sys/unix.
type Linux struct{}

func NewLinux() Syscaller { return Linux{} }

func (Linux) PivotRoot(newRoot, putOld string) error {
	return wrap("pivot_root", unix.PivotRoot(newRoot, putOld))
}

func (Linux) Chroot(path string) error {
	return wrap("chroot", unix.Chroot(path))
}

func (Linux) Chdir(path string) error {
	return wrap("chdir", unix.Chdir(path))
}

func (Linux) Mount(source, target, fstype string, flags uintptr, data string) error {
	return wrap("mount", unix.Mount(source, target, fstype, flags, data))
}

func (Linux) Unmount(target string, flags int) error {
	return wrap("umount2", unix.Unmount(target, flags))
}

func (Linux) Unshare(flags uintptr) error {
	return wrap("unshare", unix.Unshare(int(flags)))
}

func (Linux) Setns(fd int, nstype uintptr) error {
	return wrap("setns", unix.Setns(fd, int(nstype)))
}

func (Linux) Sethostname(name string) error {
	return wrap("sethostname", unix.Sethostname([]byte(name)))
}

func (Linux) Setdomainname(name string) error {
	return wrap("setdomainname", unix.Setdomainname([]byte(name)))
}

func (Linux) SetresUID(ruid, euid, suid int) error {
	return wrap("setresuid", unix.Setresuid(ruid, euid, suid))
}

func (Linux) SetresGID(rgid, egid, sgid int) error {
	return wrap("setresgid", unix.Setresgid(rgid, egid, sgid))
}

func (Linux) Setgroups(gids []int) error {
	return wrap("setgroups", unix.Setgroups(gids))
}

func (Linux) Capset(hdr CapHeader, data [2]CapData) error {
	uhdr := &unix.CapUserHeader{Version: hdr.Version, Pid: hdr.Pid}
	udata := &[2]unix.CapUserData{
		{Effective: data[0].Effective, Permitted: data[0].Permitted, Inheritable: data[0].Inheritable},
		{Effective: data[1].Effective, Permitted: data[1].Permitted, Inheritable: data[1].Inheritable},
	}
	return wrap("capset", unix.Capset(uhdr, &udata[0]))
}

func (Linux) PrctlSetNoNewPrivs() error {
	return wrap("prctl(PR_SET_NO_NEW_PRIVS)", unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0))
}

func (Linux) PrctlSetKeepCaps(keep bool) error {
	var v uintptr
	if keep {
		v = 1
	}
	return wrap("prctl(PR_SET_KEEPCAPS)", unix.Prctl(unix.PR_SET_KEEPCAPS, v, 0, 0, 0))
}

func (Linux) PrctlSetDumpable(dumpable bool) error {
	var v uintptr
	if dumpable {
		v = 1
	}
	return wrap("prctl(PR_SET_DUMPABLE)", unix.Prctl(unix.PR_SET_DUMPABLE, v, 0, 0, 0))
}

func (Linux) CloseRange(first, last uint, flags uint) error {
	return wrap("close_range", unix.CloseRange(first, last, flags))
}

func (Linux) Mkfifo(path string, mode os.FileMode) error {
	return wrap("mkfifo", unix.Mkfifo(path, uint32(mode)))
}

func (Linux) Mknod(path string, mode uint32, dev int) error {
	return wrap("mknod", unix.Mknod(path, mode, dev))
}
