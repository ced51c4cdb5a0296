package syscallfacade

import "os"

// Call is one recorded invocation, kept generic so tests can assert
// order without a method-specific struct per call.
type Call struct {
	Name string
	Args []interface{}
}

// Fake records every call it receives instead of touching the kernel,
// so namespace-controller and rootfs-preparer tests can assert ordering
// invariants without root.
type Fake struct {
	Calls []Call
	// Errors, keyed by call name, are returned instead of nil for that
	// call (once), letting tests exercise error propagation.
	Errors map[string]error
}

func NewFake() *Fake {
	return &Fake{Errors: map[string]error{}}
}

func (f *Fake) record(name string, args ...interface{}) error {
	f.Calls = append(f.Calls, Call{Name: name, Args: args})
	if err, ok := f.Errors[name]; ok {
		delete(f.Errors, name)
		return err
	}
	return nil
}

func (f *Fake) PivotRoot(newRoot, putOld string) error { return f.record("pivot_root", newRoot, putOld) }
func (f *Fake) Chroot(path string) error                { return f.record("chroot", path) }
func (f *Fake) Chdir(path string) error                 { return f.record("chdir", path) }
func (f *Fake) Mount(source, target, fstype string, flags uintptr, data string) error {
	return f.record("mount", source, target, fstype, flags, data)
}
func (f *Fake) Unmount(target string, flags int) error { return f.record("umount2", target, flags) }
func (f *Fake) Unshare(flags uintptr) error            { return f.record("unshare", flags) }
func (f *Fake) Setns(fd int, nstype uintptr) error      { return f.record("setns", fd, nstype) }
func (f *Fake) Sethostname(name string) error           { return f.record("sethostname", name) }
func (f *Fake) Setdomainname(name string) error         { return f.record("setdomainname", name) }
func (f *Fake) SetresUID(ruid, euid, suid int) error {
	return f.record("setresuid", ruid, euid, suid)
}
func (f *Fake) SetresGID(rgid, egid, sgid int) error {
	return f.record("setresgid", rgid, egid, sgid)
}
func (f *Fake) Setgroups(gids []int) error { return f.record("setgroups", gids) }
func (f *Fake) Capset(hdr CapHeader, data [2]CapData) error {
	return f.record("capset", hdr, data)
}
func (f *Fake) PrctlSetNoNewPrivs() error         { return f.record("prctl_no_new_privs") }
func (f *Fake) PrctlSetKeepCaps(keep bool) error  { return f.record("prctl_keepcaps", keep) }
func (f *Fake) PrctlSetDumpable(dumpable bool) error { return f.record("prctl_dumpable", dumpable) }
func (f *Fake) CloseRange(first, last, flags uint) error {
	return f.record("close_range", first, last, flags)
}
func (f *Fake) Mkfifo(path string, mode os.FileMode) error { return f.record("mkfifo", path, mode) }
func (f *Fake) Mknod(path string, mode uint32, dev int) error {
	return f.record("mknod", path, mode, dev)
}

// Names returns just the ordered call names, for terse order assertions.
func (f *Fake) Names() []string {
	names := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		names[i] = c.Name
	}
	return names
}
