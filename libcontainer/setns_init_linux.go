//go:build linux
// +build linux

package libcontainer

import (
	"fmt"
	"os"
	"runtime"

	"github.com/go-oci/ocirt/libcontainer/seccomp"
	"github.com/go-oci/ocirt/libcontainer/syncpipe"
	"github.com/go-oci/ocirt/libcontainer/system"
	"golang.org/x/sys/unix"
)

// linuxSetnsInit joins an already-running container's namespaces by
// path (via applyNamespaces at the start of Init) and execs the
// requested process.
type linuxSetnsInit struct {
	pipe          *syncpipe.Pipe
	consoleSocket *os.File
	config        *initConfig
}

func (l *linuxSetnsInit) Init() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := applyNamespaces(l.config, false); err != nil {
		return newGenericError(fmt.Errorf("joining namespaces: %w", err), Syscall)
	}

	if l.config.CreateConsole {
		if err := setupConsole(l.consoleSocket, l.config, false); err != nil {
			return err
		}
		if err := system.Setctty(); err != nil {
			return newSystemErrorWithCause(err, "setctty")
		}
	}

	if l.config.NoNewPrivileges {
		if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
			return newSystemErrorWithCause(err, "set no_new_privs")
		}
	}

	if err := syncParentReady(l.pipe); err != nil {
		return newSystemErrorWithCause(err, "sync ready")
	}

	if err := finalizeNamespace(l.config); err != nil {
		return err
	}

	if l.config.Config.Seccomp != nil {
		if err := seccomp.Install(l.config.Config.Seccomp); err != nil {
			return newSystemErrorWithCause(err, "loading seccomp filter")
		}
	}

	l.pipe.Close()

	return system.Execv(l.config.Args[0], l.config.Args, os.Environ())
}
